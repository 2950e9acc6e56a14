package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/adltransfer/internal/auth"
	"github.com/tonimelisma/adltransfer/internal/config"
	"github.com/tonimelisma/adltransfer/internal/datalake"
	"github.com/tonimelisma/adltransfer/internal/options"
	"github.com/tonimelisma/adltransfer/internal/progress"
	"github.com/tonimelisma/adltransfer/internal/transfer"
)

// progressBuffer is the capacity of the channel between engine and reporter.
const progressBuffer = 64

// bannerRule frames the banner printed at start-up.
const bannerRule = "------------------------------------------------------------------------------"

// session carries everything the engine factory needs for one run.
type session struct {
	resolved    *config.Resolved
	config      transfer.Config
	credentials auth.Credentials
	logger      *slog.Logger
	stderr      io.Writer
}

// engineFactory authenticates and builds the engine for a session.
type engineFactory func(ctx context.Context, s *session) (transfer.Engine, error)

// app holds the process-level collaborators. Tests replace them.
type app struct {
	stdout    io.Writer
	stderr    io.Writer
	stat      options.StatFunc
	env       func() config.EnvOverrides
	newEngine engineFactory
}

func defaultApp() *app {
	return &app{
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		stat:      os.Stat,
		env:       config.ReadEnvOverrides,
		newEngine: newDataLakeEngine,
	}
}

// newRootCmd builds the single adltransfer command. Flag parsing is left to
// the options package so that single-dash long options and the -? alias
// behave the same as every other option.
func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adltransfer <source> <target> <accountName> [options]",
		Short: "High-performance transfers to and from Azure Data Lake Store",
		// Errors are rendered by main.
		SilenceErrors:      true,
		SilenceUsage:       true,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), args)
		},
	}

	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	return cmd
}

// run parses args and, unless help or samples were requested, performs the
// transfer.
func (a *app) run(ctx context.Context, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	printBanner(a.stdout)

	resolved, err := config.Resolve(a.env(), config.CLIOverrides{})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	res, err := options.Parse(args, baseConfig(resolved), a.stat)
	if err != nil {
		return err
	}

	switch res.Action {
	case options.ActionHelp:
		options.WriteHelp(a.stdout)
		return nil
	case options.ActionSamples:
		options.WriteSamples(a.stdout)
		return nil
	}

	defer res.Credentials.Secret.Destroy()

	echoConfig(a.stdout, res.Config, res.Verbose)

	logger := buildLogger(a.stderr, resolved.LogLevel, res.Verbose)

	creds := res.Credentials
	if creds.TenantID == "" {
		creds.TenantID = resolved.Tenant
	}

	engine, err := a.newEngine(ctx, &session{
		resolved:    resolved,
		config:      res.Config,
		credentials: creds,
		logger:      logger,
		stderr:      a.stderr,
	})
	if err != nil {
		return err
	}

	return execute(ctx, a.stdout, engine, res.Config)
}

// baseConfig turns the resolved config file settings into the defaults the
// command line options start from.
func baseConfig(r *config.Resolved) transfer.Config {
	cfg := transfer.DefaultConfig()
	cfg.PerFileThreadCount = r.FileThreads
	cfg.ConcurrentFileCount = r.ConcurrentFiles
	cfg.MaxSegmentLength = r.SegmentSizeBytes
	cfg.MetadataDir = r.MetadataDir

	return cfg
}

// execute runs the engine with a reporter draining its progress channel.
// The channel is closed once Execute has returned; execute waits for the
// reporter to print the last snapshot before reporting the outcome.
func execute(ctx context.Context, stdout io.Writer, engine transfer.Engine, cfg transfer.Config) error {
	verb := "Starting"
	if cfg.Resume {
		verb = "Resuming"
	}

	statusf(stdout, "%s %s...\n", verb, cfg.Direction)

	ch := make(chan transfer.Progress, progressBuffer)
	done := make(chan struct{})
	reporter := progress.NewReporter(stdout)

	go func() {
		defer close(done)
		reporter.Run(ch)
	}()

	start := time.Now()
	err := engine.Execute(ctx, cfg, ch)

	close(ch)
	<-done

	if err != nil {
		return err
	}

	statusf(stdout, "%s completed in %s.\n", cfg.Direction, time.Since(start).Round(time.Millisecond))

	return nil
}

// newDataLakeEngine signs in and returns a Manager over the account's
// WebHDFS endpoint.
func newDataLakeEngine(ctx context.Context, s *session) (transfer.Engine, error) {
	httpClient := newHTTPClient(s.resolved.ConnectTimeout)

	authenticator := auth.New(auth.Config{
		ClientID:      s.resolved.ClientID,
		DefaultTenant: s.resolved.Tenant,
		TokenPath:     config.TokenCachePath,
		HTTPClient:    httpClient,
	}, s.logger)

	ts, err := authenticator.Authenticate(ctx, s.credentials, func(da auth.DeviceAuth) {
		// Device code prompts are always shown, whatever the log level.
		fmt.Fprintf(s.stderr, "To sign in, visit: %s\n", da.VerificationURI)
		fmt.Fprintf(s.stderr, "Enter code: %s\n", da.UserCode)
	})
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	client := datalake.NewClient(
		datalake.AccountURL(s.config.AccountName, s.resolved.EndpointSuffix),
		httpClient,
		ts,
		s.logger,
		s.resolved.UserAgent,
	)

	return transfer.NewManager(client, s.logger), nil
}

// newHTTPClient returns a client whose dials give up after connectTimeout.
// Transfers themselves are unbounded: a segment can take a long time.
func newHTTPClient(connectTimeout time.Duration) *http.Client {
	transport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Client{}
	}

	t := transport.Clone()
	t.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = connectTimeout
	t.ResponseHeaderTimeout = 2 * connectTimeout

	return &http.Client{Transport: t}
}

// buildLogger creates an slog.Logger on w. The config file log level
// provides the baseline; --verbose raises it to info because CLI flags
// always win.
func buildLogger(w io.Writer, configLevel string, verbose bool) *slog.Logger {
	level := slog.LevelWarn

	switch configLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}

	if verbose && level > slog.LevelInfo {
		level = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func printBanner(w io.Writer) {
	fmt.Fprintln(w, bannerRule)
	fmt.Fprintf(w, "adltransfer %s\n", config.Version)
	fmt.Fprintln(w, bannerRule)
}

// echoConfig prints what is about to be transferred. Verbose adds the
// tuning values.
func echoConfig(w io.Writer, cfg transfer.Config, verbose bool) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Source: %s\n", cfg.SourcePath)
	fmt.Fprintf(w, "Target: %s\n", cfg.TargetPath)
	fmt.Fprintf(w, "Account Name: %s\n", cfg.AccountName)

	if verbose {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Per File Thread Count: %d\n", cfg.PerFileThreadCount)
		fmt.Fprintf(w, "Concurrent File Count: %d\n", cfg.ConcurrentFileCount)
		fmt.Fprintf(w, "Segment Length: %s (%s bytes)\n",
			progress.FormatSize(cfg.MaxSegmentLength), humanize.Comma(cfg.MaxSegmentLength))
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Overwrite: %t\n", cfg.Overwrite)
		fmt.Fprintf(w, "Binary: %t\n", cfg.Binary)
		fmt.Fprintf(w, "Recursive: %t\n", cfg.Recursive)
		fmt.Fprintf(w, "Metadata: %s\n", cfg.MetadataDir)
	}

	fmt.Fprintln(w)
}

// isPrecondition reports whether err is a validation failure printed as a
// plain line rather than a highlighted fatal error.
func isPrecondition(err error) bool {
	return errors.Is(err, options.ErrSourceNotFound) || errors.Is(err, options.ErrIncompleteServicePrincipal)
}
