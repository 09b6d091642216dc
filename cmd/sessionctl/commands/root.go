package commands

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/tokenstore"
)

var (
	baseURL     string
	credentials string
	envFile     string
	profile     string
	verbose     bool

	client *goSession.Client

	rootCmd = &cobra.Command{
		Use:   "sessionctl",
		Short: "Session-aware HTTP client",
		Long: `sessionctl logs in against a backend's session endpoints, stores the
access token in a credentials file and attaches it to later requests.

Configuration comes from GOSESSION_* environment variables (optionally loaded
from --env-file) and is overridden by flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildClient(cmd)
			if err != nil {
				return err
			}
			client = c
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if client != nil {
				client.Close()
			}
		},
	}
)

// Execute runs the root command.
func Execute() error { return rootCmd.Execute() }

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "backend origin (overrides GOSESSION_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&credentials, "credentials", "", "credentials file (default ~/.config/sessionctl/credentials.json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "default", "name the token is stored under")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log session activity to stderr")
}

func buildClient(cmd *cobra.Command) (*goSession.Client, error) {
	cfg, err := goSession.ConfigFromEnv("", envFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("base-url") || cfg.BaseURL == "" {
		cfg.BaseURL = baseURL
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("no backend configured; pass --base-url or set GOSESSION_BASE_URL")
	}

	path := credentials
	if path == "" {
		if path, err = tokenstore.DefaultCredentialsPath("sessionctl"); err != nil {
			return nil, err
		}
	}
	cfg.Storage.Backend = goSession.StorageFile
	cfg.Storage.FilePath = path
	cfg.Storage.Key = profile

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	return goSession.New().WithConfig(cfg).WithLogger(log).Build()
}
