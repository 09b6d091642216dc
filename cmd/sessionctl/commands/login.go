package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	loginIdentifier string
	loginSecret     string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := loginSecret
		if secret == "" {
			secret = os.Getenv("GOSESSION_SECRET")
		}
		if secret == "" {
			fmt.Fprint(cmd.ErrOrStderr(), "secret: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.New("no secret given")
			}
			secret = strings.TrimRight(line, "\r\n")
		}

		claims, err := client.Login(cmd.Context(), loginIdentifier, secret)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s until %s\n", claims.SubjectID(), claims.Expiry().Format("15:04:05"))
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginIdentifier, "identifier", "u", "", "login identifier")
	loginCmd.Flags().StringVar(&loginSecret, "secret", "", "secret (prefer GOSESSION_SECRET or the prompt)")
	_ = loginCmd.MarkFlagRequired("identifier")
	rootCmd.AddCommand(loginCmd)
}
