package commands

import (
	"context"
	"fmt"
	"os"

	"visitcounter/lib/configutil"
	"visitcounter/lib/sqliteutil"
	"visitcounter/lib/telemetry"

	"github.com/spf13/cobra"
)

const envPrefix = "VISITCOUNTER_"

type Config struct {
	// EndpointUrl is the target for the counting service.
	EndpointUrl string            `json:"endpoint_url" env:"ENDPOINT_URL"`
	Sessions    sqliteutil.Config `json:"sessions" envPrefix:"SESSIONS_"`
	Debug       bool              `json:"debug" env:"DEBUG"`
	// DumpDir receives full http dumps of counter requests when debugging.
	DumpDir string `json:"dump_dir" env:"DUMP_DIR"`
}

var configPath *string

var rootCmd = &cobra.Command{
	Use:   "visitcounter",
	Short: "visitcounter renders the visit counter into the site's pages.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(false)
	},
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "visitcounter.json5", "The config file to read.")
}

func readConfig() (Config, error) {
	cfg, err := configutil.Read[Config](*configPath, configutil.WithEnvPrefix(envPrefix))
	if err != nil {
		return Config{}, err
	}
	telemetry.InitSlog(cfg.Debug)
	return cfg, nil
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
