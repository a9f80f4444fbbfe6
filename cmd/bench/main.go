package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/hyprpal/scenepal/internal/config"
	"github.com/hyprpal/scenepal/internal/engine"
	"github.com/hyprpal/scenepal/internal/state"
	"github.com/hyprpal/scenepal/internal/util"
)

type benchFixture struct {
	Name         string
	Observations []benchObservation
}

type benchObservation struct {
	Observation *state.Observation
	Delay       time.Duration
}

type benchLatencyStats struct {
	Min    float64 `json:"minMs"`
	Mean   float64 `json:"meanMs"`
	Median float64 `json:"medianMs"`
	P95    float64 `json:"p95Ms"`
	Max    float64 `json:"maxMs"`
}

type benchAllocationStats struct {
	Total         uint64  `json:"totalAllocations"`
	PerCycle      float64 `json:"allocationsPerCycle"`
	BytesTotal    uint64  `json:"bytesTotal"`
	BytesPerCycle float64 `json:"bytesPerCycle"`
}

type benchWriteStats struct {
	Total        int     `json:"total"`
	PerIteration float64 `json:"perIteration"`
	PerCycle     float64 `json:"perCycle"`
}

type benchSummary struct {
	Fixture            string               `json:"fixture"`
	Iterations         int                  `json:"iterations"`
	CyclesPerIteration int                  `json:"cyclesPerIteration"`
	TotalCycles        int                  `json:"totalCycles"`
	WarmupIterations   int                  `json:"warmupIterations"`
	Writes             benchWriteStats      `json:"writes"`
	Outcomes           map[string]int       `json:"outcomes"`
	Latency            benchLatencyStats    `json:"latency"`
	Allocations        benchAllocationStats `json:"allocations"`
	TotalDurationMs    float64              `json:"totalDurationMs"`
	CyclesPerSecond    float64              `json:"cyclesPerSecond"`
}

type benchReport struct {
	Summary     benchSummary `json:"summary"`
	DurationsMs []float64    `json:"durationsMs"`
}

// benchObserver hands out the fixture's observations in order.
type benchObserver struct {
	mu    sync.Mutex
	queue []*state.Observation
}

func (b *benchObserver) push(obs *state.Observation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, obs)
}

func (b *benchObserver) Observe(context.Context) (*state.Observation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil, state.ErrNoFocus
	}
	obs := b.queue[0]
	b.queue = b.queue[1:]
	if obs == nil {
		return nil, state.ErrNoFocus
	}
	return obs, nil
}

type benchWriter struct {
	writes int
}

func (w *benchWriter) WriteScene(string) error {
	w.writes++
	return nil
}

type benchSource struct {
	cfg *config.Config
}

func (s benchSource) Current(context.Context) (*config.Config, error) { return s.cfg, nil }
func (s benchSource) Invalidate()                                     {}

type iterationResult struct {
	durations []time.Duration
	writes    int
	outcomes  map[string]int
}

func main() {
	cfgPath := flag.String("config", "", "path to JSON config (default: built-in template)")
	fixturePath := flag.String("fixture", "", "path to replay fixture (JSON or class|title|desktop lines)")
	iterations := flag.Int("iterations", 10, "number of times to replay the fixture")
	warmup := flag.Int("warmup", 0, "number of warm-up iterations to run before timing")
	cpuProfile := flag.String("cpu-profile", "", "write CPU profile to file")
	memProfile := flag.String("mem-profile", "", "write heap profile to file")
	logLevel := flag.String("log-level", "warn", "log level (trace|debug|info|warn|error)")
	respectDelays := flag.Bool("respect-delays", false, "sleep for delays declared in the fixture")
	outputPath := flag.String("output", "-", "write JSON report to file ('-' for stdout)")
	humanSummary := flag.Bool("human", false, "print a tabular summary alongside the JSON output")
	flag.Parse()

	if *iterations <= 0 {
		fmt.Fprintln(os.Stderr, "iterations must be positive")
		os.Exit(1)
	}
	if *warmup < 0 {
		fmt.Fprintln(os.Stderr, "warmup must be zero or positive")
		os.Exit(1)
	}

	logger := util.NewLogger(util.ParseLogLevel(*logLevel))

	var (
		cfg *config.Config
		err error
	)
	if *cfgPath == "" {
		cfg, err = config.Parse([]byte(config.Template))
	} else {
		cfg, _, err = config.Load(*cfgPath)
	}
	if err != nil {
		exitErr(fmt.Errorf("load config: %w", err))
	}

	fixture := defaultFixture()
	if *fixturePath != "" {
		fixture, err = loadFixture(*fixturePath)
		if err != nil {
			exitErr(fmt.Errorf("load fixture: %w", err))
		}
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			exitErr(fmt.Errorf("create cpu profile: %w", err))
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			exitErr(fmt.Errorf("start cpu profile: %w", err))
		}
		defer pprof.StopCPUProfile()
	}

	ctx := context.Background()
	for i := 0; i < *warmup; i++ {
		if _, err := replayIteration(ctx, fixture, cfg, logger, *respectDelays); err != nil {
			exitErr(fmt.Errorf("warmup iteration %d: %w", i+1, err))
		}
	}

	runtime.GC()
	var startMem runtime.MemStats
	runtime.ReadMemStats(&startMem)

	results := make([]iterationResult, 0, *iterations)
	for i := 0; i < *iterations; i++ {
		res, err := replayIteration(ctx, fixture, cfg, logger, *respectDelays)
		if err != nil {
			exitErr(fmt.Errorf("iteration %d: %w", i+1, err))
		}
		results = append(results, res)
	}

	runtime.GC()
	var endMem runtime.MemStats
	runtime.ReadMemStats(&endMem)

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			exitErr(fmt.Errorf("create mem profile: %w", err))
		}
		defer f.Close()
		if err := pprof.WriteHeapProfile(f); err != nil {
			exitErr(fmt.Errorf("write heap profile: %w", err))
		}
	}

	report := buildReport(fixture, *warmup, results, startMem, endMem)
	if err := writeReport(report, *outputPath); err != nil {
		exitErr(fmt.Errorf("encode report: %w", err))
	}
	if *humanSummary {
		if err := printHumanSummary(report.Summary, os.Stdout); err != nil {
			exitErr(fmt.Errorf("print human summary: %w", err))
		}
	}
}

func replayIteration(ctx context.Context, fixture benchFixture, cfg *config.Config, logger *util.Logger, respectDelays bool) (iterationResult, error) {
	observer := &benchObserver{}
	writer := &benchWriter{}
	eng := engine.New(observer, benchSource{cfg: cfg}, writer, logger, engine.Options{})
	if err := eng.Start(ctx); err != nil {
		return iterationResult{}, fmt.Errorf("start: %w", err)
	}

	res := iterationResult{
		durations: make([]time.Duration, 0, len(fixture.Observations)),
		outcomes:  make(map[string]int),
	}
	for _, step := range fixture.Observations {
		if respectDelays && step.Delay > 0 {
			time.Sleep(step.Delay)
		}
		observer.push(step.Observation)
		start := time.Now()
		decision, err := eng.Step(ctx)
		if err != nil {
			return iterationResult{}, err
		}
		res.durations = append(res.durations, time.Since(start))
		res.outcomes[string(decision.Outcome)]++
	}
	res.writes = writer.writes
	return res, nil
}

func buildReport(fixture benchFixture, warmup int, results []iterationResult, start, end runtime.MemStats) benchReport {
	var (
		durations []time.Duration
		writes    int
	)
	outcomes := make(map[string]int)
	for _, res := range results {
		durations = append(durations, res.durations...)
		writes += res.writes
		for k, v := range res.outcomes {
			outcomes[k] += v
		}
	}
	totalCycles := len(durations)
	latency, total := buildLatencyStats(durations)

	allocs := end.Mallocs - start.Mallocs
	bytesAllocated := end.TotalAlloc - start.TotalAlloc

	durationsMs := make([]float64, len(durations))
	for i, d := range durations {
		durationsMs[i] = toMillis(d)
	}

	summary := benchSummary{
		Fixture:            fixture.Name,
		Iterations:         len(results),
		CyclesPerIteration: len(fixture.Observations),
		TotalCycles:        totalCycles,
		WarmupIterations:   warmup,
		Writes: benchWriteStats{
			Total:        writes,
			PerIteration: safeDivide(writes, len(results)),
			PerCycle:     safeDivide(writes, totalCycles),
		},
		Outcomes: outcomes,
		Latency:  latency,
		Allocations: benchAllocationStats{
			Total:         allocs,
			PerCycle:      safeDivide(int(allocs), totalCycles),
			BytesTotal:    bytesAllocated,
			BytesPerCycle: safeDivide(int(bytesAllocated), totalCycles),
		},
		TotalDurationMs: toMillis(total),
		CyclesPerSecond: cyclesPerSecond(total, totalCycles),
	}
	return benchReport{Summary: summary, DurationsMs: durationsMs}
}

func buildLatencyStats(durations []time.Duration) (benchLatencyStats, time.Duration) {
	stats := benchLatencyStats{}
	if len(durations) == 0 {
		return stats, 0
	}
	total := time.Duration(0)
	for _, d := range durations {
		total += d
	}
	mean := total / time.Duration(len(durations))
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	stats.Min = toMillis(sorted[0])
	stats.Mean = toMillis(mean)
	stats.Median = toMillis(percentile(sorted, 0.50))
	stats.P95 = toMillis(percentile(sorted, 0.95))
	stats.Max = toMillis(sorted[len(sorted)-1])
	return stats, total
}

func safeDivide(total int, count int) float64 {
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}

func writeReport(report benchReport, outputPath string) error {
	var w io.Writer
	switch strings.TrimSpace(outputPath) {
	case "", "-":
		w = os.Stdout
	default:
		if dir := filepath.Dir(outputPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create report dir: %w", err)
			}
		}
		out, err := os.Create(outputPath)
		if err != nil {
			return err
		}
		defer out.Close()
		w = out
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func printHumanSummary(summary benchSummary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Fixture:\t%s\n", summary.Fixture)
	fmt.Fprintf(tw, "Iterations:\t%d\n", summary.Iterations)
	fmt.Fprintf(tw, "Warmup iterations:\t%d\n", summary.WarmupIterations)
	fmt.Fprintf(tw, "Cycles/iteration:\t%d\n", summary.CyclesPerIteration)
	fmt.Fprintf(tw, "Total cycles:\t%d\n", summary.TotalCycles)
	fmt.Fprintf(tw, "Scene writes:\t%d (%.2f / iter, %.2f / cycle)\n", summary.Writes.Total, summary.Writes.PerIteration, summary.Writes.PerCycle)
	outcomes := make([]string, 0, len(summary.Outcomes))
	for k := range summary.Outcomes {
		outcomes = append(outcomes, k)
	}
	sort.Strings(outcomes)
	for _, k := range outcomes {
		fmt.Fprintf(tw, "Outcome %s:\t%d\n", k, summary.Outcomes[k])
	}
	l := summary.Latency
	fmt.Fprintf(tw, "Latency (ms):\tmin %.3f | mean %.3f | median %.3f | p95 %.3f | max %.3f\n", l.Min, l.Mean, l.Median, l.P95, l.Max)
	fmt.Fprintf(tw, "Allocations:\t%d total (%.2f / cycle)\n", summary.Allocations.Total, summary.Allocations.PerCycle)
	fmt.Fprintf(tw, "Cycles/sec:\t%.2f\n", summary.CyclesPerSecond)
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

func cyclesPerSecond(total time.Duration, cycles int) float64 {
	if total <= 0 || cycles == 0 {
		return 0
	}
	return float64(cycles) / total.Seconds()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(p*float64(len(sorted)-1) + 0.5)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func loadFixture(path string) (benchFixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return benchFixture{}, err
	}
	if strings.ToLower(filepath.Ext(path)) == ".json" || looksLikeJSON(data) {
		var payload struct {
			Name         string `json:"name"`
			Observations []struct {
				Classes   []string `json:"classes"`
				Title     string   `json:"title"`
				Workspace string   `json:"workspace"`
				None      bool     `json:"none"`
				Delay     string   `json:"delay"`
			} `json:"observations"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return benchFixture{}, err
		}
		fixture := benchFixture{Name: fallback(payload.Name, filepath.Base(path))}
		for _, o := range payload.Observations {
			step := benchObservation{}
			if o.Delay != "" {
				d, err := time.ParseDuration(o.Delay)
				if err != nil {
					return benchFixture{}, fmt.Errorf("parse delay %q: %w", o.Delay, err)
				}
				step.Delay = d
			}
			if !o.None {
				step.Observation = state.NewObservation(o.Classes, o.Title, o.Workspace)
			}
			fixture.Observations = append(fixture.Observations, step)
		}
		if len(fixture.Observations) == 0 {
			return benchFixture{}, errors.New("fixture contains no observations")
		}
		return fixture, nil
	}
	observations, err := parseObservationLog(string(data))
	if err != nil {
		return benchFixture{}, err
	}
	return benchFixture{Name: filepath.Base(path), Observations: observations}, nil
}

func looksLikeJSON(data []byte) bool {
	return strings.HasPrefix(strings.TrimSpace(string(data)), "{")
}

// parseObservationLog reads "class[,class...]|title|desktop" lines. A line of
// "-" stands for a cycle without a focused window.
func parseObservationLog(input string) ([]benchObservation, error) {
	lines := strings.Split(input, "\n")
	observations := make([]benchObservation, 0, len(lines))
	for idx, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if trimmed == "-" {
			observations = append(observations, benchObservation{})
			continue
		}
		parts := strings.SplitN(trimmed, "|", 3)
		if strings.TrimSpace(parts[0]) == "" {
			return nil, fmt.Errorf("line %d: missing window class", idx+1)
		}
		var title, workspace string
		if len(parts) > 1 {
			title = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			workspace = strings.TrimSpace(parts[2])
		}
		var classes []string
		for _, class := range strings.Split(parts[0], ",") {
			classes = append(classes, strings.TrimSpace(class))
		}
		observations = append(observations, benchObservation{
			Observation: state.NewObservation(classes, title, workspace),
		})
	}
	if len(observations) == 0 {
		return nil, errors.New("observation log produced no observations")
	}
	return observations, nil
}

func defaultFixture() benchFixture {
	obs := func(class, title, workspace string) benchObservation {
		return benchObservation{Observation: state.NewObservation([]string{class}, title, workspace)}
	}
	return benchFixture{
		Name: "synthetic-workday",
		Observations: []benchObservation{
			obs("google-chrome", "Docs - Google Chrome", "1"),
			obs("google-chrome", "Mail - Google Chrome", "1"),
			obs("jetbrains-goland", "scenepal - main.go", "2"),
			obs("kitty", "~/src", "2"),
			{},
			obs("Slack", "general", "3"),
			obs("google-chrome", "Docs - Google Chrome", "1"),
		},
	}
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return def
}

func exitErr(err error) {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		fmt.Fprintf(os.Stderr, "error: %v\n", pathErr)
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}
