package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	goSession "github.com/MrEthical07/goSession"
)

var errNotLoggedIn = errors.New("not logged in; run 'sessionctl login' first")

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the claims of the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := client.Session()
		if !s.IsAuthenticated {
			return errNotLoggedIn
		}
		out := map[string]any{
			"sub":     s.User.SubjectID(),
			"email":   s.User.Email,
			"role":    s.User.Role,
			"org_id":  s.User.OrgID,
			"expires": s.User.Expiry(),
		}
		b, _ := json.MarshalIndent(out, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Obtain a new access token now",
	RunE: func(cmd *cobra.Command, args []string) error {
		claims, err := client.Refresh(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "refreshed, valid until %s\n", claims.Expiry().Format("15:04:05"))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and remove the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		client.Logout(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), "logged out")
		return nil
	},
}

var requestData string

var requestCmd = &cobra.Command{
	Use:   "request METHOD PATH",
	Short: "Send an authenticated request and print the response body",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return send(cmd, strings.ToUpper(args[0]), args[1])
	},
}

var getCmd = &cobra.Command{
	Use:   "get PATH",
	Short: "Shorthand for request GET PATH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return send(cmd, http.MethodGet, args[0])
	},
}

func send(cmd *cobra.Command, method, path string) error {
	var body io.Reader
	if requestData != "" {
		body = strings.NewReader(requestData)
	}
	req, err := client.NewRequest(cmd.Context(), method, path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if errors.Is(err, goSession.ErrRefreshFailed) {
		return fmt.Errorf("session expired: %w", errNotLoggedIn)
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(cmd.OutOrStdout(), resp.Body); err != nil {
		return err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

func init() {
	requestCmd.Flags().StringVarP(&requestData, "data", "d", "", "JSON request body")
	rootCmd.AddCommand(whoamiCmd, refreshCmd, logoutCmd, requestCmd, getCmd)
}
