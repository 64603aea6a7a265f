package perf

import (
	"context"
	"math"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/veyra-labs/ledgerkit/pkg/sdkerr"
)

// Runner executes micro-benchmarks against a single operation: a discarded
// warm-up phase followed by timed iterations with memory snapshots.
type Runner struct {
	// Warmup is the number of discarded warm-up iterations.
	Warmup int

	// Iterations is the number of timed iterations.
	Iterations int
}

// DefaultRunner returns a runner sized for quick comparisons.
func DefaultRunner() Runner {
	return Runner{Warmup: 5, Iterations: 50}
}

// Result holds the aggregate outcome of one benchmark run.
type Result struct {
	Name       string
	Iterations int

	Mean   time.Duration
	Min    time.Duration
	Max    time.Duration
	StdDev time.Duration

	// MemGrowth is the heap delta between the start and end of the timed
	// phase. Negative values mean the collector ran mid-benchmark.
	MemGrowth int64

	Durations []time.Duration
}

// Run benchmarks op. Warm-up iterations run first and are discarded; any
// iteration error aborts the run.
func (r Runner) Run(ctx context.Context, name string, op func(context.Context) error) (Result, error) {
	if r.Iterations <= 0 {
		return Result{}, sdkerr.NewValidation("benchmark iterations must be positive")
	}

	for i := 0; i < r.Warmup; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, sdkerr.Classify(err)
		}
		if err := op(ctx); err != nil {
			return Result{}, sdkerr.Classify(err, "benchmark_warmup")
		}
	}

	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	durations := make([]time.Duration, 0, r.Iterations)
	for i := 0; i < r.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, sdkerr.Classify(err)
		}
		start := time.Now()
		if err := op(ctx); err != nil {
			return Result{}, sdkerr.Classify(err, "benchmark")
		}
		durations = append(durations, time.Since(start))
	}

	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	res := summarize(name, durations)
	res.MemGrowth = int64(after.HeapAlloc) - int64(before.HeapAlloc)

	log.Debug().
		Str("benchmark", name).
		Dur("mean", res.Mean).
		Dur("stddev", res.StdDev).
		Int64("mem_growth", res.MemGrowth).
		Msg("Benchmark complete")
	return res, nil
}

func summarize(name string, durations []time.Duration) Result {
	res := Result{
		Name:       name,
		Iterations: len(durations),
		Durations:  durations,
		Min:        durations[0],
		Max:        durations[0],
	}

	var total time.Duration
	for _, d := range durations {
		total += d
		if d < res.Min {
			res.Min = d
		}
		if d > res.Max {
			res.Max = d
		}
	}
	res.Mean = total / time.Duration(len(durations))

	var sq float64
	for _, d := range durations {
		diff := float64(d - res.Mean)
		sq += diff * diff
	}
	res.StdDev = time.Duration(math.Sqrt(sq / float64(len(durations))))
	return res
}

// Comparison is the verdict of comparing two benchmark results.
type Comparison struct {
	Winner string

	// SpeedRatio is b.Mean / a.Mean; above 1 means a is faster.
	SpeedRatio float64

	// MemRatio compares memory growth the same way.
	MemRatio float64
}

// Compare declares a winner between two results on combined speed and
// memory criteria. Speed dominates; memory growth breaks near-ties within
// 5% of each other.
func Compare(a, b Result) Comparison {
	c := Comparison{
		SpeedRatio: ratio(float64(b.Mean), float64(a.Mean)),
		MemRatio:   ratio(float64(b.MemGrowth), float64(a.MemGrowth)),
	}

	switch {
	case c.SpeedRatio > 1.05:
		c.Winner = a.Name
	case c.SpeedRatio < 0.95:
		c.Winner = b.Name
	case a.MemGrowth <= b.MemGrowth:
		c.Winner = a.Name
	default:
		c.Winner = b.Name
	}
	return c
}

func ratio(num, den float64) float64 {
	if den == 0 {
		if num == 0 {
			return 1
		}
		return math.Inf(1)
	}
	return num / den
}
