// Command lrubench runs the lrumap loss and throughput workloads and exposes
// optional pprof/Prometheus endpoints.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"slices"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/IvanBrykalov/lrulist/lrumap"
	pmet "github.com/IvanBrykalov/lrulist/metrics/prom"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	cpusFlag = &cli.IntFlag{
		Name:  "cpus",
		Usage: "Number of CPUs the map is built for (0 = runtime.NumCPU())",
	}
	perCPUFlag = &cli.BoolFlag{
		Name:  "percpu",
		Usage: "Give every CPU its own private LRU",
	}
	capacityFlag = &cli.IntFlag{
		Name:  "capacity",
		Usage: "Map capacity, overriding the workload default",
	}
	logFormatFlag = &cli.StringFlag{
		Name:  "log.format",
		Usage: "Log format to use (auto|text|json)",
		Value: "auto",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug",
		Value: 3,
	}
	httpFlag = &cli.StringFlag{
		Name:  "http",
		Usage: "Serve Prometheus metrics at addr (e.g. :8080); empty = disabled",
	}
	pprofFlag = &cli.StringFlag{
		Name:  "pprof",
		Usage: "Serve pprof at addr (e.g. :6060); empty = disabled",
	}
	dbFlag = &cli.StringFlag{
		Name:  "db",
		Usage: "Record every run in the pebble database at this directory",
	}

	sizeFlag = &cli.IntFlag{Name: "size", Usage: "Map capacity"}
	keysFlag = &cli.IntFlag{Name: "keys", Usage: "Number of keys"}
	hotFlag  = &cli.IntFlag{Name: "hot", Usage: "First key of the hot range"}

	tasksFlag   = &cli.IntFlag{Name: "tasks", Usage: "Concurrent tasks (0 = one per CPU)"}
	stableFlag  = &cli.IntFlag{Name: "stable", Usage: "Stable keys per task"}
	repeatsFlag = &cli.IntFlag{Name: "repeats", Usage: "Operations per task"}
	seedFlag    = &cli.Int64Flag{Name: "seed", Usage: "Random seed"}

	backendFlag  = &cli.StringFlag{Name: "backend", Usage: "Map under test: lrumap | golang-lru | arc | fastcache"}
	workersFlag  = &cli.IntFlag{Name: "workers", Usage: "Number of worker goroutines (0 = 2*GOMAXPROCS)"}
	durationFlag = &cli.DurationFlag{Name: "duration", Usage: "Benchmark duration"}
	readsFlag    = &cli.IntFlag{Name: "reads", Usage: "Read percentage [0..100]"}
	zipfSFlag    = &cli.Float64Flag{Name: "zipf.s", Usage: "Zipf s > 1 (skew)"}
	zipfVFlag    = &cli.Float64Flag{Name: "zipf.v", Usage: "Zipf v"}
	preloadFlag  = &cli.IntFlag{Name: "preload", Usage: "Preload entries (0 = capacity/2)"}

	limitFlag       = &cli.IntFlag{Name: "limit", Usage: "Show at most this many runs (0 = all)", Value: 20}
	filterCmdFlag   = &cli.StringFlag{Name: "cmd", Usage: "Only show runs of this command"}
	fingerprintFlag = &cli.StringFlag{Name: "fingerprint", Usage: "Only show runs with this config fingerprint"}
)

var registry = prometheus.NewRegistry()

func main() {
	app := &cli.App{
		Name:  "lrubench",
		Usage: "exercise the per-CPU LRU map",
		Flags: []cli.Flag{
			configFlag, cpusFlag, perCPUFlag, capacityFlag,
			logFormatFlag, verbosityFlag, httpFlag, pprofFlag, dbFlag,
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "loss",
				Usage:  "Insert past capacity while touching a hot range, then count losses by age",
				Flags:  []cli.Flag{sizeFlag, keysFlag, hotFlag},
				Action: lossCmd,
			},
			{
				Name:   "fill",
				Usage:  "Insert exactly capacity keys and count losses",
				Flags:  []cli.Flag{keysFlag},
				Action: fillCmd,
			},
			{
				Name:   "parallel",
				Usage:  "Run one task per CPU, each keeping a stable key set alive",
				Flags:  []cli.Flag{tasksFlag, stableFlag, repeatsFlag, seedFlag},
				Action: parallelCmd,
			},
			{
				Name:  "mix",
				Usage: "Zipf read/write mix against lrumap or a baseline",
				Flags: []cli.Flag{
					backendFlag, workersFlag, durationFlag, readsFlag, keysFlag,
					zipfSFlag, zipfVFlag, seedFlag, preloadFlag,
				},
				Action: mixCmd,
			},
			{
				Name:   "history",
				Usage:  "List recorded runs, newest first",
				Flags:  []cli.Flag{limitFlag, filterCmdFlag, fingerprintFlag},
				Action: historyCmd,
			},
			{
				Name:   "dumpconfig",
				Usage:  "Print the effective configuration as TOML",
				Action: dumpConfigCmd,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup installs the default logger.
func setup(ctx *cli.Context) error {
	handler, err := logHandler(ctx.String(logFormatFlag.Name), ctx.Int(verbosityFlag.Name), os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// serve starts the optional pprof and metrics endpoints.
func serve(cfg serverConfig) {
	if cfg.Pprof != "" {
		go func() {
			slog.Info("pprof: serving", "addr", cfg.Pprof)
			slog.Error("pprof server stopped", "err", http.ListenAndServe(cfg.Pprof, nil))
		}()
	}
	if cfg.HTTP != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
		go func() {
			slog.Info("metrics: serving", "addr", cfg.HTTP)
			slog.Error("metrics server stopped", "err", http.ListenAndServe(cfg.HTTP, mux))
		}()
	}
}

func logHandler(format string, verbosity int, w *os.File) (slog.Handler, error) {
	var level slog.Level
	switch {
	case verbosity <= 0:
		return slog.DiscardHandler, nil
	case verbosity == 1:
		level = slog.LevelError
	case verbosity == 2:
		level = slog.LevelWarn
	case verbosity == 3:
		level = slog.LevelInfo
	default:
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if format == "auto" {
		format = "json"
		if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
			format = "text"
		}
	}
	switch format {
	case "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unknown log format: %v", format)
	}
}

// makeConfig layers defaults, the config file and explicitly set flags.
func makeConfig(ctx *cli.Context) (benchConfig, error) {
	cfg := defaultConfig
	if file := ctx.String(configFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return cfg, err
		}
	}

	setInt := func(f *cli.IntFlag, dst *int) {
		if ctx.IsSet(f.Name) {
			*dst = ctx.Int(f.Name)
		}
	}
	setInt64 := func(f *cli.Int64Flag, dst *int64) {
		if ctx.IsSet(f.Name) {
			*dst = ctx.Int64(f.Name)
		}
	}
	setFloat := func(f *cli.Float64Flag, dst *float64) {
		if ctx.IsSet(f.Name) {
			*dst = ctx.Float64(f.Name)
		}
	}
	setString := func(f *cli.StringFlag, dst *string) {
		if ctx.IsSet(f.Name) {
			*dst = ctx.String(f.Name)
		}
	}

	setInt(cpusFlag, &cfg.Map.CPUs)
	setInt(capacityFlag, &cfg.Map.Capacity)
	if ctx.IsSet(perCPUFlag.Name) {
		cfg.Map.PerCPU = ctx.Bool(perCPUFlag.Name)
	}
	setString(httpFlag, &cfg.Server.HTTP)
	setString(pprofFlag, &cfg.Server.Pprof)
	setString(dbFlag, &cfg.History)

	// Command flags share names across commands; each command only
	// registers the ones it reads.
	switch ctx.Command.Name {
	case "loss":
		setInt(sizeFlag, &cfg.Loss.Size)
		setInt(keysFlag, &cfg.Loss.Keys)
		setInt(hotFlag, &cfg.Loss.HotStart)
	case "fill":
		setInt(keysFlag, &cfg.Loss.Keys)
	case "parallel":
		setInt(tasksFlag, &cfg.Parallel.Tasks)
		setInt(stableFlag, &cfg.Parallel.StableElems)
		setInt(repeatsFlag, &cfg.Parallel.Repeats)
		setInt64(seedFlag, &cfg.Parallel.Seed)
	case "mix":
		setString(backendFlag, &cfg.Mix.Backend)
		setInt(workersFlag, &cfg.Mix.Workers)
		if ctx.IsSet(durationFlag.Name) {
			cfg.Mix.Duration = duration(ctx.Duration(durationFlag.Name))
		}
		setInt(readsFlag, &cfg.Mix.Reads)
		setInt(keysFlag, &cfg.Mix.Keys)
		setFloat(zipfSFlag, &cfg.Mix.ZipfS)
		setFloat(zipfVFlag, &cfg.Mix.ZipfV)
		setInt64(seedFlag, &cfg.Mix.Seed)
		setInt(preloadFlag, &cfg.Mix.Preload)
	}

	if cfg.Map.CPUs <= 0 {
		cfg.Map.CPUs = runtime.NumCPU()
	}
	if cfg.Mix.Workers <= 0 {
		cfg.Mix.Workers = 2 * runtime.GOMAXPROCS(0)
	}
	if cfg.Mix.Reads < 0 || cfg.Mix.Reads > 100 {
		return cfg, errors.New("reads must be within [0..100]")
	}
	return cfg, nil
}

// metricsFor returns a Prometheus adapter when the metrics endpoint is on.
func metricsFor(cfg benchConfig, sub string) lrumap.Metrics {
	if cfg.Server.HTTP == "" {
		return nil
	}
	return pmet.New(registry, "lru", sub, nil)
}

func lossCmd(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	serve(cfg.Server)
	res, err := runLoss(ctx.Context, cfg.Loss, cfg.Map, metricsFor(cfg, "loss"), slog.Default())
	if err != nil {
		return err
	}
	fmt.Printf("size=%d keys=%d hot=%d cpus=%d percpu=%v\n",
		cfg.Loss.Size, cfg.Loss.Keys, cfg.Loss.HotStart, cfg.Map.CPUs, cfg.Map.PerCPU)
	fmt.Printf("old:    %d/%d lost\n", res.OldLosses, res.Old)
	fmt.Printf("active: %d/%d lost\n", res.ActiveLosses, res.Active)
	fmt.Printf("new:    %d/%d lost\n", res.NewLosses, res.New)
	return record(cfg, "loss", map[string]float64{
		"old_lost":    float64(res.OldLosses),
		"active_lost": float64(res.ActiveLosses),
		"new_lost":    float64(res.NewLosses),
	})
}

func fillCmd(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	serve(cfg.Server)
	losses, err := runFill(ctx.Context, cfg.Loss.Keys, cfg.Map, metricsFor(cfg, "fill"), slog.Default())
	if err != nil {
		return err
	}
	fmt.Printf("keys=%d cpus=%d percpu=%v losses=%d\n", cfg.Loss.Keys, cfg.Map.CPUs, cfg.Map.PerCPU, losses)
	return record(cfg, "fill", map[string]float64{"lost": float64(losses)})
}

func parallelCmd(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	serve(cfg.Server)
	start := time.Now()
	losses, err := runParallel(ctx.Context, cfg.Parallel, cfg.Map, metricsFor(cfg, "parallel"), slog.Default())
	if err != nil {
		return err
	}
	total := 0
	for task, n := range losses {
		total += n
		fmt.Printf("task %d: %d/%d lost\n", task, n, cfg.Parallel.StableElems)
	}
	worst := slices.Max(append(losses, 0))
	fmt.Printf("tasks=%d stable=%d repeats=%d elapsed=%v total-lost=%d worst=%d\n",
		len(losses), cfg.Parallel.StableElems, cfg.Parallel.Repeats,
		time.Since(start).Round(time.Millisecond), total, worst)
	return record(cfg, "parallel", map[string]float64{
		"lost":  float64(total),
		"worst": float64(worst),
	})
}

func mixCmd(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	serve(cfg.Server)
	capacity := cfg.Map.Capacity
	if capacity <= 0 {
		capacity = 100_000
	}
	b, err := newBackend(cfg.Mix.Backend, cfg.Map, capacity, metricsFor(cfg, "mix"), slog.Default())
	if err != nil {
		return err
	}
	if c, ok := b.(io.Closer); ok {
		defer c.Close()
	}

	// Preload half capacity to get a realistic hit-rate.
	pl := cfg.Mix.Preload
	if pl == 0 {
		pl = capacity / 2
	}
	for i := range pl {
		b.Set(i%cfg.Map.CPUs, uint64(i), uint64(i))
	}

	res := runMix(ctx.Context, cfg.Mix, b, cfg.Map.CPUs)
	fmt.Printf("backend=%s cap=%d cpus=%d workers=%d keys=%d dur=%v seed=%d\n",
		cfg.Mix.Backend, capacity, cfg.Map.CPUs, cfg.Mix.Workers, cfg.Mix.Keys, res.Elapsed, cfg.Mix.Seed)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		res.Ops, float64(res.Ops)/res.Elapsed.Seconds(), res.Reads, res.Writes)
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", res.Hits, res.Misses, res.HitRate())
	fmt.Printf("Len()=%d\n", res.Len)
	return record(cfg, "mix", map[string]float64{
		"ops_per_sec": float64(res.Ops) / res.Elapsed.Seconds(),
		"hit_rate":    res.HitRate(),
	})
}

// record appends a finished run to the history database, if one is set.
func record(cfg benchConfig, command string, summary map[string]float64) error {
	if cfg.History == "" {
		return nil
	}
	fp, enc, err := fingerprint(cfg)
	if err != nil {
		return err
	}
	h, err := openHistory(cfg.History)
	if err != nil {
		return err
	}
	defer h.Close()

	rec := runRecord{
		Time:        time.Now().UnixNano(),
		Command:     command,
		Fingerprint: fp,
		Config:      enc,
		Summary:     summary,
	}
	if err := h.Add(rec); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	slog.Info("run recorded", "db", cfg.History, "fingerprint", fp)
	return nil
}

func historyCmd(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.History == "" {
		return errors.New("history needs --db or History in the config file")
	}
	h, err := openHistory(cfg.History)
	if err != nil {
		return err
	}
	defer h.Close()

	runs, err := h.List(ctx.String(filterCmdFlag.Name), ctx.String(fingerprintFlag.Name), ctx.Int(limitFlag.Name))
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Println(r)
	}
	return nil
}

func dumpConfigCmd(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	out, err := dumpConfig(&cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}
