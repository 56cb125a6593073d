// Package cli implements the timelock command tree.
package cli

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"timelock/internal/beacon"
	"timelock/internal/card"
	"timelock/internal/config"
	"timelock/internal/logging"
	"timelock/internal/metrics"
)

// Options carries the dependencies of a command run. Zero values select
// the production implementations.
type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Fs       afero.Fs
	Registry *prometheus.Registry
	Beacon   func(config.BeaconConfig) beacon.Authority
	Now      func() time.Time
}

func (o *Options) applyDefaults() {
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Registry == nil {
		o.Registry = prometheus.NewRegistry()
		o.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if o.Beacon == nil {
		o.Beacon = func(c config.BeaconConfig) beacon.Authority {
			return beacon.NewDefault(c.URL, c.ChainHash)
		}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// flagBinding ties a command-local flag to a config key.
type flagBinding struct {
	flag string
	key  string
}

type app struct {
	opts Options

	v          *viper.Viper
	configFile string
	output     string
	bindings   map[*cobra.Command][]flagBinding

	cfg     *config.Config
	log     *logging.Logger
	store   *card.Store
	metrics *metrics.Metrics
	server  *metrics.Server
	printer *Printer
}

// Run executes the command line in args.
func Run(ctx context.Context, args []string, opts Options) error {
	opts.applyDefaults()

	a := &app{
		opts:     opts,
		v:        config.New(),
		log:      logging.Nop(),
		bindings: make(map[*cobra.Command][]flagBinding),
	}
	a.v.SetFs(opts.Fs)
	defer a.close()

	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(opts.Stdin)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)

	return root.ExecuteContext(ctx)
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "timelock",
		Short: "Wrap messages in time-lock puzzles",
		Long: `timelock wraps a message in a time-lock puzzle that can only be opened
by performing a fixed number of sequential modular squarings. The
wrapper chooses roughly how long unwrapping should take; the real
duration depends on the unwrapping machine.

Unwrapping can be interrupted at any time and continued later.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (YAML)")
	flags.StringVar(&a.output, "output", string(OutputFormatText), "output format (text, json, yaml)")
	flags.String("store-dir", "", "directory holding wrapped cards")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (console, json)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")

	// Only a nil flag makes BindPFlag fail.
	_ = a.v.BindPFlag(config.KeyStoreDir, flags.Lookup("store-dir"))
	_ = a.v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	_ = a.v.BindPFlag(config.KeyLogFormat, flags.Lookup("log-format"))
	_ = a.v.BindPFlag(config.KeyMetricsAddress, flags.Lookup("metrics-addr"))

	root.AddCommand(
		a.wrapCommand(),
		a.unwrapCommand(),
		a.statusCommand(),
		a.inspectCommand(),
		a.calibrateCommand(),
		a.versionCommand(),
	)
	return root
}

// bind makes flag on cmd override key, but only when cmd is the command
// being executed. Different commands may bind the same key.
func (a *app) bind(cmd *cobra.Command, flag, key string) {
	a.bindings[cmd] = append(a.bindings[cmd], flagBinding{flag: flag, key: key})
}

// setup loads configuration and builds shared services.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	format, err := ParseOutputFormat(a.output)
	if err != nil {
		return err
	}
	a.printer = NewPrinter(format, cmd.OutOrStdout())

	for _, b := range a.bindings[cmd] {
		if err := a.v.BindPFlag(b.key, cmd.Flags().Lookup(b.flag)); err != nil {
			return err
		}
	}

	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.log = logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	logging.SetDefault(a.log)

	dir := cfg.StoreDir
	if dir == "" {
		if dir, err = card.DefaultBaseDir(); err != nil {
			return err
		}
	}
	a.store = card.NewStore(a.opts.Fs, dir,
		card.WithClock(a.opts.Now),
		card.WithLogger(a.log.Named("store")),
	)

	a.metrics = metrics.New(a.opts.Registry)
	if addr := cfg.Metrics.Address; addr != "" {
		a.server = metrics.NewServer(addr, a.opts.Registry)
		go func() {
			if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Warn("metrics server stopped", logging.Err(err))
			}
		}()
		a.log.Debug("serving metrics", logging.Path(addr))
	}

	return nil
}

func (a *app) close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(ctx)
	}
	_ = a.log.Sync()
}
