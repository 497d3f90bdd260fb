package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/conversiontools/conversiontools-go/internal/config"
	"github.com/conversiontools/conversiontools-go/internal/progress"
	"github.com/conversiontools/conversiontools-go/pkg/conversion"
)

// commonFlags are shared by every subcommand.
type commonFlags struct {
	token      *string
	configPath *string
	baseURL    *string
	sandbox    *bool
	noProgress *bool
}

func registerCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		token:      fs.String("token", "", "API token (defaults to CONVERSIONTOOLS_TOKEN)"),
		configPath: fs.String("config", "", "Path to a YAML config file"),
		baseURL:    fs.String("base-url", "", "API base URL override"),
		sandbox:    fs.Bool("sandbox", false, "Run conversions in sandbox mode (no quota usage)"),
		noProgress: fs.Bool("quiet", false, "Suppress progress output"),
	}
}

// loadConfig resolves the effective configuration: defaults, then config
// file, then environment, then flags.
func loadConfig(cf *commonFlags) (config.Config, error) {
	cfg := config.Default()

	if *cf.configPath != "" {
		fileCfg, err := config.LoadFromFile(*cf.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = fileCfg
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	cfg = cfg.Merge(config.Config{
		Token:   *cf.token,
		BaseURL: *cf.baseURL,
		Sandbox: *cf.sandbox,
	})

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newClient builds a client from the resolved configuration, wiring a
// progress reporter unless quiet output was requested.
func newClient(cfg config.Config, cf *commonFlags) (*conversion.Client, *progress.Reporter, error) {
	opts := cfg.ClientOptions()

	var reporter *progress.Reporter
	if !*cf.noProgress {
		reporter = progress.NewReporter(progress.Options{})
		opts.UploadObserver = reporter
		opts.DownloadObserver = reporter
		opts.ConversionObserver = reporter
	}

	c, err := conversion.NewClient(opts)
	if err != nil {
		return nil, nil, err
	}
	return c, reporter, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\n[ctools] Received interrupt, shutting down...")
		cancel()
	}()

	return ctx, cancel
}

// exitCode maps client errors to process exit codes.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		authErr    *conversion.AuthError
		rateErr    *conversion.RateLimitError
		convErr    *conversion.ConversionError
		timeoutErr *conversion.TimeoutError
		notFound   *conversion.NotFoundError
		validation *conversion.ValidationError
	)
	switch {
	case errors.As(err, &authErr):
		return ExitAuthError
	case errors.As(err, &rateErr):
		return ExitRateLimited
	case errors.As(err, &convErr):
		return ExitConversionFailed
	case errors.As(err, &timeoutErr):
		return ExitTimeout
	case errors.As(err, &notFound):
		return ExitNotFound
	case errors.As(err, &validation):
		return ExitInvalidArgs
	default:
		return ExitGeneralError
	}
}

// fail prints the error and returns its exit code.
func fail(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return exitCode(err)
}
