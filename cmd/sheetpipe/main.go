package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetpipe/internal/application"
	"github.com/JonMunkholm/sheetpipe/internal/config"
	"github.com/JonMunkholm/sheetpipe/internal/core"
	"github.com/JonMunkholm/sheetpipe/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is fine; flags and the environment still apply.
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout, os.Stderr, application.Open).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if msg := core.FormatUserError(err); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(1)
	}
}

// openFunc opens the store and service for one command.
type openFunc func(ctx context.Context, cfg *config.Config) (*application.App, error)

// cli holds the persistent flags shared by every command.
type cli struct {
	driver   string
	path     string
	logLevel string
	jsonOut  bool

	stdout io.Writer
	stderr io.Writer
	open   openFunc
}

func newRootCmd(stdout, stderr io.Writer, open openFunc) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr, open: open}

	rootCmd := &cobra.Command{
		Use:   "sheetpipe",
		Short: "Run spreadsheet table transformations from the command line",
		Long: `sheetpipe remaps, groups, separates and subtotals spreadsheet tables.

Tables live in an xlsx workbook (default), a PostgreSQL database or memory.
Settings come from the environment (see .env); --store and --path override
STORE_DRIVER and STORE_PATH.

Example: sheetpipe run --path ledger.xlsx`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&c.driver, "store", "", "Store driver: xlsx|postgres|memory (default from STORE_DRIVER)")
	pf.StringVar(&c.path, "path", "", "Workbook path for the xlsx driver (default from STORE_PATH)")
	pf.StringVar(&c.logLevel, "log-level", "", "Log level: debug|info|warn|error (default from LOG_LEVEL)")
	pf.BoolVar(&c.jsonOut, "json", false, "Print results as JSON")

	rootCmd.AddCommand(
		c.newNormalizeHeaderCmd(),
		c.newRemapCmd(),
		c.newSortCmd(),
		c.newSeparateCmd(),
		c.newFillMarkersCmd(),
		c.newResolveSubtotalsCmd(),
		c.newRunCmd(),
		c.newImportCmd(),
		c.newExportCmd(),
		c.newSummaryCmd(),
		c.newTablesCmd(),
		c.newResetCmd(),
	)
	return rootCmd
}

// loadConfig reads the environment and applies flag overrides.
func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if c.driver != "" {
		cfg.Store.Driver = c.driver
	}
	if c.path != "" {
		cfg.Store.Path = c.path
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// withApp opens the store for one command and closes it afterwards. Logs
// go to stderr so stdout carries only results.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *application.App) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	logging.SetupWriter(c.stderr, cfg.Logging.Level, cfg.Logging.Format)

	ctx := core.ContextWithOrigin(cmd.Context(), core.Origin{Source: "cli"})
	app, err := c.open(ctx, cfg)
	if err != nil {
		return err
	}
	runErr := fn(ctx, app)
	if err := app.Close(); err != nil && runErr == nil {
		return fmt.Errorf("close store: %w", err)
	}
	return runErr
}
