// Package storebench compares the latency of key-value stores on the
// workload of a small application: growing an array one item at a time,
// writing it at once, reading it back, and single item reads and writes.
//
// A run is a single pass, timings are reported raw.
package storebench

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ccontavalli/nativestore/lib/kflags"
	"github.com/ccontavalli/nativestore/lib/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Measurement identifies one timed step of a run.
type Measurement int

const (
	WriteOneByOne Measurement = iota
	WriteBulk
	ReadOneByOneArray
	ReadBulkArray
	WriteSingle
	ReadSingle
)

// Measurements lists every Measurement in the order they are run.
var Measurements = []Measurement{WriteOneByOne, WriteBulk, ReadOneByOneArray, ReadBulkArray, WriteSingle, ReadSingle}

func (m Measurement) String() string {
	switch m {
	case WriteOneByOne:
		return "Write (One by One)"
	case WriteBulk:
		return "Write (Bulk)"
	case ReadOneByOneArray:
		return "Read (One by One Array)"
	case ReadBulkArray:
		return "Read (Bulk Array)"
	case WriteSingle:
		return "Write (Single)"
	case ReadSingle:
		return "Read (Single)"
	}
	return fmt.Sprintf("Measurement(%d)", int(m))
}

// Keys written by a run, and removed once it completes.
const (
	KeyOneByOne = "performanceTestOneByOne"
	KeyBulk     = "performanceTestBulk"
	KeySingle   = "test-single"

	SingleValue = "test-value"
)

type Flags struct {
	Iterations int
}

func DefaultFlags() *Flags {
	return &Flags{Iterations: 100}
}

func (f *Flags) Register(set kflags.FlagSet, prefix string) *Flags {
	set.IntVar(&f.Iterations, prefix+"iterations", f.Iterations, "Number of items appended to, and written in, each array")
	return f
}

type options struct {
	iterations int
	log        logger.Logger
	now        func() time.Time
}

type Modifier func(*options)

func WithIterations(iterations int) Modifier {
	return func(o *options) {
		o.iterations = iterations
	}
}

func WithLogger(log logger.Logger) Modifier {
	return func(o *options) {
		o.log = log
	}
}

func FromFlags(flags *Flags) Modifier {
	return func(o *options) {
		if flags != nil && flags.Iterations > 0 {
			o.iterations = flags.Iterations
		}
	}
}

// TestData returns the items written by a run: test-0, test-1, ...
func TestData(iterations int) []string {
	items := make([]string, iterations)
	for i := range items {
		items[i] = fmt.Sprintf("test-%d", i)
	}
	return items
}

// Result holds the timings of a single contender.
type Result struct {
	Contender string
	Durations map[Measurement]time.Duration

	// Lengths of the arrays read back, to verify against Iterations.
	OneByOneLength int
	BulkLength     int
}

// Report is the outcome of a run.
type Report struct {
	ID         uuid.UUID
	Started    time.Time
	Iterations int
	Results    []Result
}

// Run times every measurement on each contender, one contender after the
// other, then removes the keys it wrote.
//
// The first contender is the baseline the others are compared against.
func Run(ctx context.Context, contenders []Contender, mods ...Modifier) (*Report, error) {
	opts := options{iterations: DefaultFlags().Iterations, log: logger.Nil, now: time.Now}
	for _, m := range mods {
		m(&opts)
	}
	if len(contenders) == 0 {
		return nil, fmt.Errorf("API Usage Error - at least one contender is required")
	}
	if opts.iterations <= 0 {
		return nil, fmt.Errorf("iterations must be positive, got %d", opts.iterations)
	}

	report := &Report{ID: uuid.New(), Started: opts.now(), Iterations: opts.iterations}
	opts.log.Infof("run %s: %d contenders, %d iterations", report.ID, len(contenders), opts.iterations)

	data := TestData(opts.iterations)
	var runErr error
	for _, contender := range contenders {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		result, err := runOne(ctx, contender, data, opts)
		if err != nil {
			runErr = fmt.Errorf("%s: %w", contender.Name(), err)
			break
		}
		report.Results = append(report.Results, *result)
	}

	if err := Cleanup(context.Background(), contenders); err != nil {
		if runErr == nil {
			return nil, err
		}
		opts.log.Warnf("run %s: cleanup failed: %v", report.ID, err)
	}
	if runErr != nil {
		return nil, runErr
	}
	return report, nil
}

func runOne(ctx context.Context, contender Contender, data []string, opts options) (*Result, error) {
	result := &Result{Contender: contender.Name(), Durations: map[Measurement]time.Duration{}}

	timed := func(m Measurement, step func() error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := opts.now()
		err := step()
		result.Durations[m] = opts.now().Sub(start)
		if err != nil {
			return fmt.Errorf("%s: %w", m, err)
		}
		opts.log.Debugf("%s %s: %s", contender.Name(), m, result.Durations[m])
		return nil
	}

	var oneByOne, bulk []string
	steps := []struct {
		measurement Measurement
		step        func() error
	}{
		{WriteOneByOne, func() error {
			for _, item := range data {
				if err := contender.AppendToArray(KeyOneByOne, item); err != nil {
					return err
				}
			}
			return nil
		}},
		{WriteBulk, func() error {
			return contender.SetArray(KeyBulk, data)
		}},
		{ReadOneByOneArray, func() (err error) {
			oneByOne, err = contender.GetArray(KeyOneByOne)
			return err
		}},
		{ReadBulkArray, func() (err error) {
			bulk, err = contender.GetArray(KeyBulk)
			return err
		}},
		{WriteSingle, func() error {
			return contender.SetItem(KeySingle, SingleValue)
		}},
		{ReadSingle, func() error {
			value, err := contender.GetItem(KeySingle)
			if err == nil && value != SingleValue {
				err = fmt.Errorf("read back %q, expected %q", value, SingleValue)
			}
			return err
		}},
	}
	for _, s := range steps {
		if err := timed(s.measurement, s.step); err != nil {
			return nil, err
		}
	}

	result.OneByOneLength = len(oneByOne)
	result.BulkLength = len(bulk)
	return result, nil
}

// Cleanup removes the keys written by a run from every contender, in parallel.
func Cleanup(ctx context.Context, contenders []Contender) error {
	group, ctx := errgroup.WithContext(ctx)
	for _, contender := range contenders {
		contender := contender
		group.Go(func() error {
			for _, key := range []string{KeyOneByOne, KeyBulk, KeySingle} {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := contender.Remove(key); err != nil {
					return fmt.Errorf("%s: removing %s: %w", contender.Name(), key, err)
				}
			}
			return nil
		})
	}
	return group.Wait()
}

// Comparison is how the baseline fared against another contender on one
// measurement.
type Comparison struct {
	Measurement Measurement
	Baseline    string
	Other       string

	// Percent is (other - baseline) / other * 100: positive when the
	// baseline is faster. NaN if other took no measurable time.
	Percent float64
}

func (c Comparison) Verdict() string {
	switch {
	case math.IsNaN(c.Percent):
		return "not comparable"
	case c.Percent > 0:
		return "faster"
	}
	return "slower"
}

// ComparedMeasurements are the measurements worth comparing across contenders.
var ComparedMeasurements = []Measurement{WriteBulk, WriteOneByOne, ReadBulkArray, ReadOneByOneArray, ReadSingle}

// Percent returns (other - baseline) / other * 100.
func Percent(baseline, other time.Duration) float64 {
	if other == 0 {
		return math.NaN()
	}
	return float64(other-baseline) / float64(other) * 100
}

// Compare returns the comparisons of the first result against all others.
func (r *Report) Compare() []Comparison {
	if len(r.Results) < 2 {
		return nil
	}
	baseline := r.Results[0]

	var comparisons []Comparison
	for _, other := range r.Results[1:] {
		for _, m := range ComparedMeasurements {
			comparisons = append(comparisons, Comparison{
				Measurement: m,
				Baseline:    baseline.Contender,
				Other:       other.Contender,
				Percent:     Percent(baseline.Durations[m], other.Durations[m]),
			})
		}
	}
	return comparisons
}

// Verified returns true if every array read back had Iterations items.
func (r *Report) Verified() bool {
	for _, result := range r.Results {
		if result.OneByOneLength != r.Iterations || result.BulkLength != r.Iterations {
			return false
		}
	}
	return true
}
