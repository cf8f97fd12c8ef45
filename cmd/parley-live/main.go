// Command parley-live runs a voice session against a conversational agent
// gateway from the terminal: microphone in, speaker out, transcripts and
// function calls printed as they happen.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfg appConfig

	cmd := &cobra.Command{
		Use:   "parley-live",
		Short: "Terminal client for real-time voice sessions",
		Long: `parley-live connects to a voice agent gateway over WebSocket, streams
microphone audio up and agent speech down, and executes the agent's
locally-handled function calls (navigation, screen content) against a
terminal host.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runApp(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.URL, "url", "", "gateway WebSocket URL (required; also PARLEY_URL)")
	flags.StringVar(&cfg.Mode, "mode", "live", "session mode: live or local")
	flags.StringVar(&cfg.Model, "model", "", "model identifier passed to the gateway")
	flags.StringVar(&cfg.SystemPrompt, "system-prompt", "", "system prompt for the session")
	flags.StringVar(&cfg.CartesiaKey, "cartesia-api-key", "", "Cartesia API key for local mode (also CARTESIA_API_KEY)")
	flags.StringVar(&cfg.PrefsPath, "prefs", defaultPrefsPath(), "preference database path")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.StringVar(&cfg.LogFile, "log-file", "", "rotating log file (empty: console only)")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (empty: disabled)")
	flags.StringVar(&cfg.VisitEndpoint, "visit-endpoint", "", "out-of-band page-visit notification URL")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("parley-live v%s\n", version)
		},
	})

	cobra.OnInitialize(func() { bindEnv(cmd) })
	return cmd
}

// bindEnv lets every flag fall back to a PARLEY_* environment variable,
// with .env loaded first for local development.
func bindEnv(cmd *cobra.Command) {
	_ = godotenv.Load()

	viper.SetEnvPrefix("parley")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	flags := cmd.Flags()
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		if v := viper.GetString(f.Name); v != "" {
			_ = flags.Set(f.Name, v)
		}
	})
}

func defaultPrefsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "parley.db"
	}
	return home + "/.parley/prefs.db"
}
