// Command anansi-bootstrap reconciles a database with a declarative manifest of
// collections, indexes and seed documents.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asaidimu/go-anansi-bootstrap/core/applier"
	"github.com/asaidimu/go-anansi-bootstrap/core/manifest"
	"github.com/asaidimu/go-anansi-bootstrap/core/persistence"
	"github.com/asaidimu/go-anansi-bootstrap/mongo"
	"github.com/asaidimu/go-anansi-bootstrap/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "dev"

const usageText = `anansi-bootstrap - create collections, indexes and seed documents from a manifest

Usage:
  anansi-bootstrap <command> [options]

Commands:
  apply      Apply a manifest to a database
  validate   Check a manifest without touching a database
  list       List the manifests compiled into the binary
  version    Print the version

Manifests are referenced as a file path, s3://bucket/key or builtin:<name>.
Run 'anansi-bootstrap <command> --help' for the options of a command.
`

// cli carries the process streams so commands can run under test.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	lookup func(string) (string, bool)
}

func main() {
	ctx, stop := interruptContext(context.Background())
	c := &cli{stdout: os.Stdout, stderr: os.Stderr, lookup: os.LookupEnv}
	code := c.run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// interruptContext is cancelled on SIGINT or SIGTERM, so an interrupted apply
// stops between entries and still prints the partial report.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (c *cli) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(c.stderr, usageText)
		return ExitConfig
	}

	switch args[0] {
	case "apply":
		return c.apply(ctx, args[1:])
	case "validate":
		return c.validate(ctx, args[1:])
	case "list":
		return c.list(args[1:])
	case "version", "--version":
		fmt.Fprintf(c.stdout, "anansi-bootstrap %s\n", version)
		return ExitSuccess
	case "help", "-h", "--help":
		fmt.Fprint(c.stdout, usageText)
		return ExitSuccess
	}

	fmt.Fprintf(c.stderr, "Unknown command: %s\n\n%s", args[0], usageText)
	return ExitConfig
}

func (c *cli) flagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage: anansi-bootstrap %s\n\nOptions:\n", synopsis)
		fs.PrintDefaults()
	}
	return fs
}

// parse returns the exit code to stop with, or -1 to continue.
func parse(fs *flag.FlagSet, args []string) int {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitConfig
	}
	return -1
}

func manifestRef(fs *flag.FlagSet, ref string) string {
	if ref == "" && fs.NArg() > 0 {
		return fs.Arg(0)
	}
	return ref
}

var errNoManifest = configError("No manifest given", nil, "Pass --manifest with a file path, s3://bucket/key or builtin:<name>")

func (c *cli) apply(ctx context.Context, args []string) int {
	fs := c.flagSet("apply", "apply --manifest REF [options]")
	ref := fs.StringP("manifest", "m", "", "Manifest to apply")
	jsonOutput := fs.Bool("json", false, "Print the report as JSON")
	noColor := fs.Bool("no-color", false, "Disable colored output")
	flags := bindConfigFlags(fs, true)
	if code := parse(fs, args); code >= 0 {
		return code
	}
	initColors(*noColor, c.lookup)

	source := manifestRef(fs, *ref)
	if source == "" {
		return reportError(c.stderr, errNoManifest, *jsonOutput)
	}

	cfg, err := resolveConfig(fs, flags, c.lookup)
	if err != nil {
		return reportError(c.stderr, configError("Invalid configuration", err, "Check --config, the ANANSI_* variables and the flags"), *jsonOutput)
	}

	logger, err := newLogger(cfg.LogLevel, c.stderr)
	if err != nil {
		return reportError(c.stderr, configError("Invalid log level", err, "Use debug, info, warn or error"), *jsonOutput)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	m, err := manifest.Open(ctx, source, cfg.SourceOptions(c.lookup))
	if err != nil {
		return reportError(c.stderr, manifestError(source, err), *jsonOutput)
	}

	db, target, err := openDatabase(ctx, &cfg, m, logger)
	if err != nil {
		return reportError(c.stderr, err, *jsonOutput)
	}
	defer closeDatabase(db, logger)

	reg := prometheus.NewRegistry()
	a, err := applier.New(db, &applier.Options{Logger: logger, Registerer: reg, CollectStats: cfg.Stats})
	if err != nil {
		return reportError(c.stderr, err, *jsonOutput)
	}

	report, applyErr := a.Apply(ctx, m)
	if report != nil {
		if *jsonOutput {
			_ = renderJSON(c.stdout, report)
		} else {
			renderReport(c.stdout, report, target)
		}
	}

	if cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, reg); err != nil {
			logger.Error("Failed to write metrics file", zap.String("path", cfg.MetricsFile), zap.Error(err))
		}
	}

	if applyErr != nil {
		return reportError(c.stderr, applyError(applyErr), *jsonOutput)
	}
	if report.HasFailures() {
		return ExitFailures
	}
	return ExitSuccess
}

func (c *cli) validate(ctx context.Context, args []string) int {
	fs := c.flagSet("validate", "validate --manifest REF [options]")
	ref := fs.StringP("manifest", "m", "", "Manifest to check")
	jsonOutput := fs.Bool("json", false, "Print the result as JSON")
	noColor := fs.Bool("no-color", false, "Disable colored output")
	flags := bindConfigFlags(fs, false)
	if code := parse(fs, args); code >= 0 {
		return code
	}
	initColors(*noColor, c.lookup)

	source := manifestRef(fs, *ref)
	if source == "" {
		return reportError(c.stderr, errNoManifest, *jsonOutput)
	}

	cfg, err := resolveConfig(fs, flags, c.lookup)
	if err != nil {
		return reportError(c.stderr, configError("Invalid configuration", err, "Check --config, the ANANSI_* variables and the flags"), *jsonOutput)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	m, err := manifest.Open(ctx, source, cfg.SourceOptions(c.lookup))
	if err != nil {
		return reportError(c.stderr, manifestError(source, err), *jsonOutput)
	}

	summary := summarize(m)
	if *jsonOutput {
		_ = renderJSON(c.stdout, summary)
	} else {
		renderSummary(c.stdout, summary)
	}
	return ExitSuccess
}

func (c *cli) list(args []string) int {
	fs := c.flagSet("list", "list [--json]")
	jsonOutput := fs.Bool("json", false, "Print the names as JSON")
	if code := parse(fs, args); code >= 0 {
		return code
	}

	names := manifest.Builtins()
	if *jsonOutput {
		_ = renderJSON(c.stdout, names)
		return ExitSuccess
	}
	for _, name := range names {
		fmt.Fprintf(c.stdout, "builtin:%s\n", name)
	}
	return ExitSuccess
}

// newLogger builds a JSON logger writing to w at the given level.
func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), zapcore.AddSync(w), lvl)
	return zap.New(core, zap.AddCaller()).Named("anansi-bootstrap"), nil
}

// openDatabase connects the configured driver. It returns the interactor and a
// description of the target for reports.
func openDatabase(ctx context.Context, cfg *Config, m *manifest.Manifest, logger *zap.Logger) (persistence.DatabaseInteractor, string, error) {
	opts := &persistence.InteractorOptions{CollectionPrefix: cfg.CollectionPrefix}

	if cfg.Driver == driverMongoDB {
		database := cfg.ResolveDatabase(m)
		if database == "" {
			return nil, "", configError("No database name", nil, "Pass --database or declare database in the manifest")
		}
		db, err := mongo.Connect(ctx, mongo.Config{
			URI:        cfg.ResolveURI(),
			Database:   database,
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		}, logger, opts)
		if err != nil {
			return nil, "", connectError(err)
		}
		return db, "mongodb " + database, nil
	}

	uri := cfg.ResolveURI()
	db, err := sqlite.Open(ctx, uri, logger, opts)
	if err != nil {
		return nil, "", connectError(err)
	}
	return db, "sqlite " + uri, nil
}

func connectError(err error) *cliError {
	return &cliError{
		Message:  "Cannot connect to the database",
		Cause:    err.Error(),
		Fix:      "Check --driver, --uri and the credentials",
		ExitCode: ExitConnection,
		Err:      err,
	}
}

func closeDatabase(db persistence.DatabaseInteractor, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.Close(ctx); err != nil {
		logger.Warn("Failed to close database", zap.Error(err))
	}
}
