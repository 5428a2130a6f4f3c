package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/asaidimu/go-quire/app"
	"github.com/asaidimu/go-quire/config"
)

// cli carries the flags shared by every command.
type cli struct {
	configPath string
	dataDir    string
	envFile    string
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "quire",
		Short:         "Versioned, schema-typed document collections",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadEnv()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default $QUIRE_CONFIG_PATH or <data-dir>/quire.toml)")
	root.PersistentFlags().StringVar(&c.dataDir, "data-dir", "", "data directory (default $QUIRE_HOME or ~/.local/share/quire)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before anything else, if present")

	root.AddCommand(
		c.newInitCmd(),
		c.newCollectionCmd(),
		c.newDocCmd(),
		c.newSearchCmd(),
		c.newExportCmd(),
		c.newMCPCmd(),
		c.newServeCmd(),
	)
	return root
}

// loadEnv loads the dotenv file. A missing file is fine.
func (c *cli) loadEnv() error {
	if c.envFile == "" {
		return nil
	}
	if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", c.envFile, err)
	}
	return nil
}

func (c *cli) paths() (configPath, dataDir string, err error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return "", "", fmt.Errorf("getting defaults: %w", err)
	}
	dataDir = defaults.DataDir
	if c.dataDir != "" {
		dataDir = c.dataDir
	}
	configPath = c.configPath
	if configPath == "" {
		configPath = defaults.ConfigPath
		if c.dataDir != "" {
			configPath = filepath.Join(dataDir, config.FileName)
		}
	}
	return configPath, dataDir, nil
}

// open reads the config and creates the App. The caller must defer a.Close().
func (c *cli) open(cmd *cobra.Command) (*app.App, error) {
	configPath, _, err := c.paths()
	if err != nil {
		return nil, err
	}
	cfg, err := config.ReadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config (run quire init first?): %w", err)
	}
	a, err := app.New(cmd.Context(), cfg, promptPassphrase(cmd))
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// promptPassphrase asks on the terminal, without echo.
func promptPassphrase(cmd *cobra.Command) app.PassphraseFunc {
	return func() (string, error) {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", errors.New("no passphrase in the environment and stdin is not a terminal")
		}
		fmt.Fprint(cmd.ErrOrStderr(), "Passphrase: ")
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(secret), nil
	}
}

func (c *cli) newInitCmd() *cobra.Command {
	var blobs string
	var encrypt bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the config file and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, dataDir, err := c.paths()
			if err != nil {
				return err
			}
			cfg := config.NewConfig(dataDir)
			cfg.Blobs.Type = blobs
			cfg.Encryption.Enabled = encrypt
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return fmt.Errorf("creating data directory: %w", err)
			}
			if err := config.Init(configPath, cfg); err != nil {
				return fmt.Errorf("failed to initialize config: %w", err)
			}

			a, err := app.New(cmd.Context(), cfg, promptPassphrase(cmd))
			if err != nil {
				return fmt.Errorf("initializing app: %w", err)
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration initialized at %s\n", configPath)
			fmt.Fprintf(out, "Database: %s\n", cfg.DatabasePath())
			return nil
		},
	}
	cmd.Flags().StringVar(&blobs, "blobs", "filesystem", "blob store type: memory, filesystem or s3")
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "encrypt file contents at rest with age")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func readJSON(cmd *cobra.Command, path string) (any, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return v, nil
}
