// Package commands implements the contactws command line.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ingeweb/contactws/internal/config"
)

var (
	cfgFile string
	v       = viper.New()
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "contactws",
	Short: "SARH directory authentication and user synchronization",
	Long: `contactws authenticates users against the SARH directory, provisions
their local accounts and keeps account suspension in line with the roster.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd.Flags())

		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("reading config %s: %w", cfgFile, err)
			}
		}

		c, err := config.Load(v)
		if err != nil {
			return err
		}
		cfg = c
		logger = newLogger(c.LogLevel)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	config.SetDefaults(v)
	config.BindEnv(v)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "info", "debug, info, warn or error")
	rootCmd.PersistentFlags().String("db", "data/contactws.db", "SQLite database path")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(notifyCmd)
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"log-level": "log_level",
	"db":        "database.path",
	"port":      "server.port",
}

// bindFlags lets flags that were set explicitly override file and env
// values. Unset flags keep the defaults registered by config.SetDefaults.
func bindFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return
		}
		v.Set(key, f.Value.String())
	})
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
