// Package cmd implements the nativestore command line tool.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/ccontavalli/nativestore/lib/kvstore"
	"github.com/ccontavalli/nativestore/lib/kvstore/factory"
	"github.com/ccontavalli/nativestore/lib/kvstore/trace"
	"github.com/ccontavalli/nativestore/lib/logger"
	"github.com/ccontavalli/nativestore/lib/logger/klog"
	"github.com/ccontavalli/nativestore/lib/multierror"
	"github.com/ccontavalli/nativestore/lib/nativestore"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flags common to all subcommands.
type Flags struct {
	Config    string
	LogLevel  string
	LogFile   string
	App       string
	Namespace string

	Factory *factory.Flags
	Trace   *trace.Flags
	Store   *nativestore.Flags
}

func DefaultFlags() *Flags {
	return &Flags{
		LogLevel:  "info",
		App:       "nativestore",
		Namespace: "default",
		Factory:   factory.DefaultFlags(),
		Trace:     trace.DefaultFlags(),
		Store:     nativestore.DefaultFlags(),
	}
}

func (f *Flags) Register(set *pflag.FlagSet, prefix string) *Flags {
	set.StringVar(&f.Config, prefix+"config", f.Config, "YAML file with default values for any of the flags")
	set.StringVar(&f.LogLevel, prefix+"log-level", f.LogLevel, "Minimum level of the messages logged (debug, info, warn, error)")
	set.StringVar(&f.LogFile, prefix+"log-file", f.LogFile, "If set, log messages are also appended to this file")
	set.StringVar(&f.App, prefix+"app", f.App, "Application the data belongs to")
	set.StringVar(&f.Namespace, prefix+"namespace", f.Namespace, "Namespace within the application")
	f.Factory.Register(set, prefix)
	f.Trace.Register(set, prefix)
	f.Store.Register(set, prefix)
	return f
}

// Root is the nativestore command, and the state its subcommands share
// while running.
type Root struct {
	*cobra.Command
	flags *Flags

	log     logger.Logger
	closers []io.Closer
	backend *factory.Backend
	tracer  *trace.Tracer
	opener  kvstore.Opener
	store   *nativestore.Store
}

func New() *Root {
	root := &Root{
		Command: &cobra.Command{
			Use:           "nativestore",
			Short:         "Read, write and benchmark a cached key-value store",
			SilenceUsage:  true,
			SilenceErrors: true,
			Example: `  $ nativestore set-array fruits apple pear
  $ nativestore append fruits plum
  $ nativestore get-array fruits
  $ nativestore --store=sqlite bench`,
		},
		flags: DefaultFlags(),
	}
	root.flags.Register(root.PersistentFlags(), "")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return root.setup(cmd)
	}

	root.AddCommand(
		NewSet(root),
		NewGet(root),
		NewSetArray(root),
		NewGetArray(root),
		NewAppend(root),
		NewSetBulk(root),
		NewRemove(root),
		NewClear(root),
		NewWords(root),
		NewBench(root),
	)
	return root
}

// loadConfig fills in the flags not set on the command line from the
// config file, if any.
func loadConfig(cmd *cobra.Command, path string) error {
	if path == "" {
		return nil
	}
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("could not read config %s: %w", path, err)
	}

	var errs []error
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if flag.Changed || !v.IsSet(flag.Name) {
			return
		}
		values := []string{v.GetString(flag.Name)}
		switch flag.Value.Type() {
		case "stringArray", "stringSlice":
			values = v.GetStringSlice(flag.Name)
		}
		for _, value := range values {
			if err := flag.Value.Set(value); err != nil {
				errs = append(errs, fmt.Errorf("config %s: invalid value for %s: %w", path, flag.Name, err))
			}
		}
	})
	return multierror.New(errs)
}

func (r *Root) setupLogging(cmd *cobra.Command) error {
	level, err := logger.ParseLevel(r.flags.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}

	loggers := []logger.Logger{logger.New(cmd.ErrOrStderr(), level)}
	if r.flags.LogFile != "" {
		file, err := os.OpenFile(r.flags.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("could not open log file: %w", err)
		}
		r.closers = append(r.closers, file)
		loggers = append(loggers, logger.New(file, level))
	}
	r.log = klog.NewTee(loggers...)
	return nil
}

func (r *Root) setup(cmd *cobra.Command) error {
	if err := loadConfig(cmd, r.flags.Config); err != nil {
		return err
	}
	if err := r.setupLogging(cmd); err != nil {
		return err
	}

	backend, err := factory.New(factory.FromFlags(r.flags.Factory))
	if err != nil {
		return err
	}
	r.backend = backend

	r.tracer = trace.New(trace.FromFlags(r.flags.Trace), trace.WithLogger(r.log))
	r.opener = r.tracer.WrapOpener(backend.Opener())

	loader, err := r.opener(r.flags.App, r.flags.Namespace)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", kvstore.Scope(r.flags.App, r.flags.Namespace), err)
	}
	r.store, err = nativestore.New(loader, nativestore.FromFlags(r.flags.Store), nativestore.WithLogger(r.log))
	return err
}

func (r *Root) teardown() error {
	var errs []error
	if r.store != nil {
		errs = append(errs, r.store.Close())
		r.store = nil
	}
	if r.backend != nil {
		errs = append(errs, r.backend.Close())
		r.backend = nil
	}
	for _, closer := range r.closers {
		errs = append(errs, closer.Close())
	}
	r.closers = nil
	return multierror.New(errs)
}

// Execute runs the command selected by the arguments, and releases the
// store, backend and log file it opened, even on failure.
func (r *Root) Execute() error {
	err := r.Command.Execute()
	return multierror.New([]error{err, r.teardown()})
}

// traced wraps a loader not opened through the factory with the configured tracing.
func (r *Root) traced(name string, loader kvstore.Loader) kvstore.Loader {
	return r.tracer.WrapLoader(kvstore.Scope(r.flags.App, name), loader)
}

// Store returns the store opened for the running command.
func (r *Root) Store() *nativestore.Store {
	return r.store
}
