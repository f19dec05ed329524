package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papapumpkin/alka/internal/app"
	"github.com/papapumpkin/alka/internal/config"
	"github.com/papapumpkin/alka/internal/ui"
)

var rootCmd = &cobra.Command{
	Use:           "alka",
	Short:         "Visual novel library launcher",
	Long:          "Alka keeps a local library of visual novels, launches them while tracking play time, and syncs your list with VNDB.",
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.New().Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default .alka.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	// A missing .env is fine; values may come from the real environment.
	_ = godotenv.Load(".env")

	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".alka")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("ALKA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
}

// openApp loads configuration and opens a session.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := log.New(io.Discard, "", 0)
	if cfg.Verbose {
		logger = log.New(os.Stderr, "alka: ", log.LstdFlags)
	}
	a, err := app.Open(ctx, cfg, app.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return a, nil
}

// withApp runs fn with an open session and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, p *ui.Printer) error) error {
	ctx, cancel := setupSignalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a, newPrinter(cmd))
}

// newPrinter colors output only when it goes to the terminal streams.
func newPrinter(cmd *cobra.Command) *ui.Printer {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	if out == os.Stdout && errOut == os.Stderr {
		return ui.New()
	}
	return ui.NewWriter(out, errOut)
}

// setupSignalContext returns a context cancelled on SIGINT or SIGTERM.
func setupSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
