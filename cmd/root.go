package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tanq16/surge/internal/config"
	"github.com/tanq16/surge/internal/output"
	"github.com/tanq16/surge/internal/scheduler"
	"github.com/tanq16/surge/internal/utils"
)

var SurgeVersion = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "surge [URL]",
	Short:   "Surge downloads a file over HTTP using parallel range requests",
	Version: SurgeVersion,
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(1)(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			return &usageError{err}
		}
		display := !cfg.Download.NoProgress && output.IsTerminal(os.Stdout)
		closeLog, err := setupLogging(cfg, display)
		if err != nil {
			return err
		}
		defer closeLog()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		job := utils.SurgeJob{
			ID:               uuid.NewString(),
			JobType:          "http",
			URL:              args[0],
			OutputPath:       cfg.Download.Output,
			OpenMode:         cfg.Download.Mode,
			Connections:      cfg.Download.Connections,
			SplitSize:        cfg.SplitBytes(),
			Retry:            cfg.RetryConfig(),
			RequestRate:      cfg.Download.RequestRate,
			HTTPClientConfig: cfg.HTTPClientConfig(),
			Metadata:         make(map[string]any),
		}
		log.Debug().Str("op", "cmd/root").Str("job", job.ID).Str("config", cfg.File).
			Int("connections", job.Connections).Int64("split", job.SplitSize).Msg("Starting download")
		return scheduler.Run(ctx, job, scheduler.Options{Display: display, Out: os.Stdout})
	},
}

// setupLogging sends logs to stderr, or to a file while the progress
// display owns the terminal.
func setupLogging(cfg *config.Config, display bool) (func(), error) {
	utils.InitLogger(cfg.Log.Debug)
	logPath := cfg.Log.File
	if logPath == "" && display {
		logPath = utils.LogFile
	}
	if logPath == "" {
		return func() {}, nil
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, &utils.IOError{Op: "open log", Path: logPath, Err: err}
	}
	utils.SetLogOutput(f)
	return func() { f.Close() }, nil
}

func Execute() {
	err := rootCmd.ExecuteContext(context.Background())
	if err == nil {
		return
	}
	if !errors.Is(err, context.Canceled) {
		output.PrintError(fmt.Sprintf("Error: %v", err))
	} else {
		output.PrintWarning("Download interrupted")
	}
	os.Exit(ExitCode(err))
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (default ./surge.yaml or ~/.config/surge/surge.yaml)")
	flags.IntP("connections", "c", utils.DefaultConnections, "Number of concurrent range requests per batch")
	flags.StringP("split-size", "s", fmt.Sprint(utils.DefaultSplitSize), "Batch size in bytes (eg. 20000000, 20MB, 64MiB)")
	flags.StringP("output", "o", "", "Output file path (inferred from the URL if not provided)")
	flags.StringP("mode", "m", "overwrite", "Output open mode: overwrite, append, fail-if-exists or rename")
	flags.DurationP("timeout", "t", 3*time.Minute, "Time to wait for response headers or for body data before retrying (eg. 5s, 10m)")
	flags.DurationP("keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for idle connections (eg. 10s, 1m)")
	flags.StringP("user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser user agent)")
	flags.StringP("proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	flags.String("proxy-username", "", "Proxy username (if not provided in proxy URL)")
	flags.String("proxy-password", "", "Proxy password (if not provided in proxy URL)")
	flags.StringArrayP("header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	flags.IntP("retries", "r", 3, "Retries per request for transient failures")
	flags.Duration("retry-backoff", 500*time.Millisecond, "Initial delay between retries")
	flags.Duration("retry-max-backoff", 10*time.Second, "Maximum delay between retries")
	flags.Float64("request-rate", 0, "Maximum range requests per second (0 for unlimited)")
	flags.Bool("no-progress", false, "Disable the progress display")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("log-file", "", "Write logs to this file")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err}
	})
	rootCmd.AddCommand(newConfigCmd())
}

// usageError marks failures caused by invalid arguments or configuration.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

