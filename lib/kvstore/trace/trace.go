// Package trace provides lightweight tracing wrappers for kvstore loaders and openers.
//
// Example:
//
//	flags := trace.DefaultFlags().Register(flagSet, "")
//	tracer := trace.New(trace.FromFlags(flags), trace.WithLogger(logger.Go))
//	opener = tracer.WrapOpener(opener)
package trace

import (
	"strings"
	"time"

	"github.com/ccontavalli/nativestore/lib/kflags"
	"github.com/ccontavalli/nativestore/lib/kvstore"
	"github.com/ccontavalli/nativestore/lib/logger"
	"github.com/dustin/go-humanize"
)

// Flags configures tracing for loaders.
type Flags struct {
	Enabled      bool
	LogResponses bool
	Include      []string
	Exclude      []string
}

// DefaultFlags returns flags with tracing disabled.
func DefaultFlags() *Flags {
	return &Flags{}
}

// Register registers tracing flags with the provided FlagSet.
func (f *Flags) Register(set kflags.FlagSet, prefix string) *Flags {
	set.BoolVar(&f.Enabled, prefix+"store-trace", f.Enabled, "Log every call made to the durable store.")
	set.BoolVar(&f.LogResponses, prefix+"store-trace-responses", f.LogResponses, "Log values read and written as well as the calls.")
	set.StringArrayVar(&f.Include, prefix+"store-trace-include", f.Include, "Trace only namespaces with this prefix (repeatable).")
	set.StringArrayVar(&f.Exclude, prefix+"store-trace-exclude", f.Exclude, "Do not trace namespaces with this prefix (repeatable).")
	return f
}

// Tracer wraps loaders and openers with logging.
type Tracer struct {
	flags Flags
	log   logger.Logger
}

// Options defines configuration for a Tracer.
type Options struct {
	Log          logger.Logger
	Enabled      bool
	LogResponses bool
	Include      []string
	Exclude      []string
}

// Modifier mutates Options.
type Modifier func(*Options)

// WithLogger sets the logger used by the tracer.
func WithLogger(log logger.Logger) Modifier {
	return func(o *Options) {
		o.Log = log
	}
}

// FromFlags applies a Flags struct to the tracer options.
func FromFlags(flags *Flags) Modifier {
	return func(o *Options) {
		if flags == nil {
			return
		}
		o.Enabled = flags.Enabled
		o.LogResponses = flags.LogResponses
		o.Include = append([]string{}, flags.Include...)
		o.Exclude = append([]string{}, flags.Exclude...)
	}
}

// WithEnabled overrides whether tracing is enabled.
func WithEnabled(enabled bool) Modifier {
	return func(o *Options) {
		o.Enabled = enabled
	}
}

// WithLogResponses overrides response logging.
func WithLogResponses(enabled bool) Modifier {
	return func(o *Options) {
		o.LogResponses = enabled
	}
}

// WithInclude overrides the include list.
func WithInclude(include []string) Modifier {
	return func(o *Options) {
		o.Include = append([]string{}, include...)
	}
}

// WithExclude overrides the exclude list.
func WithExclude(exclude []string) Modifier {
	return func(o *Options) {
		o.Exclude = append([]string{}, exclude...)
	}
}

// New creates a new Tracer using the provided modifiers.
func New(mods ...Modifier) *Tracer {
	opts := &Options{
		Log: logger.Go,
	}
	for _, mod := range mods {
		mod(opts)
	}
	if opts.Log == nil {
		opts.Log = logger.Go
	}
	return &Tracer{flags: Flags{
		Enabled:      opts.Enabled,
		LogResponses: opts.LogResponses,
		Include:      append([]string{}, opts.Include...),
		Exclude:      append([]string{}, opts.Exclude...),
	}, log: opts.Log}
}

// WrapOpener returns an opener that wraps any returned loader with tracing.
func (t *Tracer) WrapOpener(opener kvstore.Opener) kvstore.Opener {
	if opener == nil {
		return nil
	}
	return func(app string, namespaces ...string) (kvstore.Loader, error) {
		loader, err := opener(app, namespaces...)
		if err != nil {
			return nil, err
		}
		return t.WrapLoader(kvstore.Scope(app, namespaces...), loader), nil
	}
}

// WrapLoader returns a traced loader if tracing is enabled for name.
func (t *Tracer) WrapLoader(name string, loader kvstore.Loader) kvstore.Loader {
	if loader == nil || !t.enabledFor(name) {
		return loader
	}
	return &tracedLoader{name: name, loader: loader, log: t.log, logResponses: t.flags.LogResponses}
}

func (t *Tracer) enabledFor(name string) bool {
	if !t.flags.Enabled && !t.flags.LogResponses {
		return false
	}
	for _, exclude := range t.flags.Exclude {
		if strings.HasPrefix(name, exclude) {
			return false
		}
	}
	if len(t.flags.Include) == 0 {
		return true
	}
	for _, include := range t.flags.Include {
		if strings.HasPrefix(name, include) {
			return true
		}
	}
	return false
}

type tracedLoader struct {
	name         string
	loader       kvstore.Loader
	log          logger.Logger
	logResponses bool
}

func (t *tracedLoader) List() ([]string, error) {
	start := time.Now()
	names, err := t.loader.List()
	if err != nil {
		t.log.Infof("store %s: List() error after %s: %v", t.name, time.Since(start), err)
		return nil, err
	}
	t.log.Infof("store %s: List() -> %d keys in %s", t.name, len(names), time.Since(start))
	if t.logResponses {
		t.log.Infof("store %s: List() -> %q", t.name, names)
	}
	return names, nil
}

func (t *tracedLoader) Read(name string) ([]byte, error) {
	start := time.Now()
	data, err := t.loader.Read(name)
	if err != nil {
		t.log.Infof("store %s: Read(%q) error after %s: %v", t.name, name, time.Since(start), err)
		return data, err
	}
	t.log.Infof("store %s: Read(%q) -> %s in %s", t.name, name, humanize.Bytes(uint64(len(data))), time.Since(start))
	if t.logResponses {
		t.log.Infof("store %s: Read(%q) -> %q", t.name, name, data)
	}
	return data, nil
}

func (t *tracedLoader) Write(name string, data []byte) error {
	if t.logResponses {
		t.log.Infof("store %s: Write(%q) value=%q", t.name, name, data)
	}
	start := time.Now()
	err := t.loader.Write(name, data)
	if err != nil {
		t.log.Infof("store %s: Write(%q) error after %s: %v", t.name, name, time.Since(start), err)
		return err
	}
	t.log.Infof("store %s: Write(%q, %s) in %s", t.name, name, humanize.Bytes(uint64(len(data))), time.Since(start))
	return nil
}

func (t *tracedLoader) Delete(name string) error {
	start := time.Now()
	err := t.loader.Delete(name)
	if err != nil {
		t.log.Infof("store %s: Delete(%q) error after %s: %v", t.name, name, time.Since(start), err)
		return err
	}
	t.log.Infof("store %s: Delete(%q) in %s", t.name, name, time.Since(start))
	return nil
}

func (t *tracedLoader) Clear() error {
	start := time.Now()
	err := t.loader.Clear()
	if err != nil {
		t.log.Infof("store %s: Clear() error after %s: %v", t.name, time.Since(start), err)
		return err
	}
	t.log.Infof("store %s: Clear() in %s", t.name, time.Since(start))
	return nil
}
