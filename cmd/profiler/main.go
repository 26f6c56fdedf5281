package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand" //nolint:gosec // intentional use for reproducible benchmarks
	"net/http"
	_ "net/http/pprof" //nolint:gosec // intentional profiling endpoint
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/felixge/fgprof"
	"github.com/klauspost/compress/zip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"

	"github.com/meigma/rangezip"
	"github.com/meigma/rangezip/config"
	"github.com/meigma/rangezip/extract"
	rangehttp "github.com/meigma/rangezip/source/http"
)

type options struct {
	configFile      string
	location        string
	entry           string
	output          string
	workers         int
	chunkSize       string
	payloadSize     string
	pattern         string
	serve           bool
	dataHTTPLatency time.Duration
	dataHTTPBPS     string
	iterations      int
	progress        bool
	verbose         bool
	pprofAddr       string
	cpuProfile      string
	memProfile      string
	traceFile       string
	fgProfile       string
	tempDir         string
	keepTemp        bool
	randomSeed      int64
}

//nolint:gocognit,gocyclo // main function complexity is acceptable for CLI tool
func main() {
	opts := parseFlags()

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig(opts)
	if err != nil {
		log.Fatal(err)
	}

	if opts.pprofAddr != "" {
		go func() {
			log.Printf("pprof listening on %s", opts.pprofAddr)
			//nolint:gosec // intentional pprof server without timeouts for profiling
			if err := http.ListenAndServe(opts.pprofAddr, nil); err != nil {
				log.Printf("pprof server error: %v", err)
			}
		}()
	}

	dir, cleanup, err := setupTempDir(opts)
	if err != nil {
		log.Fatal(err)
	}
	if cleanup != nil {
		defer cleanup() //nolint:errcheck // cleanup errors are non-fatal in profiler
	}

	if cfg.Location == "" {
		size, err := humanize.ParseBytes(opts.payloadSize)
		if err != nil {
			log.Fatalf("payload-size: %v", err) //nolint:gocritic // exitAfterDefer is intentional - cleanup is best-effort
		}
		path, err := makeArchive(dir, cfg.Entry, size, opts.pattern, opts.randomSeed)
		if err != nil {
			log.Fatal(err)
		}
		cfg.Location = path
	}
	if cfg.Output == "" {
		cfg.Output = filepath.Join(dir, "extracted.bin")
	}

	var httpOpts []rangehttp.Option
	if opts.serve {
		url, stop, err := serveFile(cfg.Location)
		if err != nil {
			log.Fatal(err)
		}
		defer stop()
		cfg.Location = url
	}
	if rangezip.IsRemote(cfg.Location) {
		th, err := newThrottle(opts.dataHTTPLatency, opts.dataHTTPBPS)
		if err != nil {
			log.Fatalf("data-http-bps: %v", err)
		}
		if th != nil {
			httpOpts = append(httpOpts, rangehttp.WithClient(th.client()))
		}
	}

	registry := prometheus.NewRegistry()
	httpOpts = append(httpOpts, rangehttp.WithMetrics(rangehttp.NewMetrics(registry)))

	if opts.fgProfile != "" {
		fgFile, fgErr := os.Create(opts.fgProfile)
		if fgErr != nil {
			log.Fatal(fgErr)
		}
		stopFG := fgprof.Start(fgFile, fgprof.FormatPprof)
		defer func() {
			if err := stopFG(); err != nil {
				log.Printf("fgprof stop error: %v", err)
			}
			_ = fgFile.Close()
		}()
	}

	if opts.cpuProfile != "" {
		cpuFile, cpuErr := os.Create(opts.cpuProfile)
		if cpuErr != nil {
			log.Fatal(cpuErr)
		}
		if cpuErr = pprof.StartCPUProfile(cpuFile); cpuErr != nil {
			log.Fatal(cpuErr)
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = cpuFile.Close()
		}()
	}

	if opts.traceFile != "" {
		traceFile, traceErr := os.Create(opts.traceFile)
		if traceErr != nil {
			log.Fatal(traceErr)
		}
		if traceErr = trace.Start(traceFile); traceErr != nil {
			log.Fatal(traceErr)
		}
		defer func() {
			trace.Stop()
			_ = traceFile.Close()
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stats, err := run(ctx, cfg, opts, logger, httpOpts)
	if err != nil {
		log.Fatal(err)
	}

	if opts.memProfile != "" {
		runtime.GC()
		f, err := os.Create(opts.memProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal(err)
		}
		_ = f.Close()
	}

	fmt.Printf("location=%s entry=%s ops=%d bytes=%s elapsed=%s throughput=%s/s\n",
		cfg.Location,
		cfg.Entry,
		stats.ops,
		humanize.IBytes(uint64(stats.bytes)), //nolint:gosec // byte counts are non-negative
		stats.elapsed,
		humanize.IBytes(uint64(float64(stats.bytes)/stats.elapsed.Seconds())),
	)
	printMetrics(registry)
}

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func run(ctx context.Context, cfg config.Config, opts options, logger *slog.Logger, httpOpts []rangehttp.Option) (profileStats, error) {
	start := time.Now()
	var stats profileStats

	for stats.ops < max(opts.iterations, 1) {
		entry, err := rangezip.Locate(ctx, cfg.Location, cfg.Entry,
			rangezip.WithConfig(cfg), rangezip.WithHTTPOptions(httpOpts...))
		if err != nil {
			return profileStats{}, err
		}

		extractOpts := []extract.Option{}
		var bar *progressbar.ProgressBar
		if opts.progress {
			bar = progressbar.DefaultBytes(entry.Size, fmt.Sprintf("extracting %s", cfg.Entry))
			extractOpts = append(extractOpts, extract.WithProgress(func(done, _ int64) {
				_ = bar.Set64(done)
			}))
		}

		_, err = rangezip.Extract(ctx, cfg.Location, cfg.Entry, cfg.Output,
			rangezip.WithLogger(logger),
			rangezip.WithConfig(cfg),
			rangezip.WithHTTPOptions(httpOpts...),
			rangezip.WithExtractOptions(extractOpts...),
		)
		if bar != nil {
			_ = bar.Finish()
		}
		if err != nil {
			return profileStats{}, err
		}
		stats.ops++
		stats.bytes += entry.Size
	}

	stats.elapsed = time.Since(start)
	return stats, nil
}

//nolint:gocritic // hugeParam acceptable for options struct in CLI tool
func loadConfig(opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		loaded, err := config.LoadFromFile(opts.configFile)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	override := config.Config{
		Location: opts.location,
		Entry:    opts.entry,
		Output:   opts.output,
		Workers:  opts.workers,
	}
	if opts.chunkSize != "" {
		n, err := humanize.ParseBytes(opts.chunkSize)
		if err != nil {
			return config.Config{}, fmt.Errorf("chunk-size: %w", err)
		}
		override.ChunkSize = int64(n) //nolint:gosec // flag values are small
	}
	return cfg.Merge(override), nil
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.configFile, "config", "", "YAML configuration file")
	flag.StringVar(&opts.location, "location", "", "archive path or URL (empty generates an archive)")
	flag.StringVar(&opts.entry, "entry", "", "entry to extract (default payload.bin)")
	flag.StringVar(&opts.output, "output", "", "destination path (default inside the temp dir)")
	flag.IntVar(&opts.workers, "workers", 0, "copy workers (0 keeps the configured value)")
	flag.StringVar(&opts.chunkSize, "chunk-size", "", "bytes copied per worker step (e.g. 4MiB)")
	flag.StringVar(&opts.payloadSize, "payload-size", "64MiB", "size of the generated entry")
	flag.StringVar(&opts.pattern, "pattern", "compressible", "generated data pattern: compressible or random")
	flag.BoolVar(&opts.serve, "serve", false, "serve the archive over a local HTTP server")
	flag.DurationVar(&opts.dataHTTPLatency, "data-http-latency", 0, "per-request latency for remote archives")
	flag.StringVar(&opts.dataHTTPBPS, "data-http-bps", "", "bytes/sec throttle for remote archives (e.g. 10MiB)")
	flag.IntVar(&opts.iterations, "iterations", 1, "number of extractions to run")
	flag.BoolVar(&opts.progress, "progress", false, "render a progress bar")
	flag.BoolVar(&opts.verbose, "v", false, "debug logging")
	flag.StringVar(&opts.pprofAddr, "pprof-addr", "", "pprof listen address (e.g. :6060)")
	flag.StringVar(&opts.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	flag.StringVar(&opts.memProfile, "memprofile", "", "write heap profile to file")
	flag.StringVar(&opts.traceFile, "trace", "", "write trace to file")
	flag.StringVar(&opts.fgProfile, "fgprofile", "", "write fgprof (wall clock) profile to file")
	flag.StringVar(&opts.tempDir, "temp-dir", "", "directory to use for generated files")
	flag.BoolVar(&opts.keepTemp, "keep-temp", false, "keep temp dir after run")
	flag.Int64Var(&opts.randomSeed, "seed", 1, "random seed")
	flag.Parse()
	return opts
}

//nolint:gocritic // hugeParam acceptable for options struct in CLI tool
func setupTempDir(opts options) (string, func() error, error) {
	if opts.tempDir != "" {
		return opts.tempDir, nil, os.MkdirAll(opts.tempDir, 0o755) //nolint:gosec // 0o755 is intentional for profiler temp dirs
	}
	dir, err := os.MkdirTemp("", "rangezip-profiler-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() error {
		if opts.keepTemp {
			return nil
		}
		return os.RemoveAll(dir)
	}
	return dir, cleanup, nil
}

// makeArchive writes an archive holding a small metadata file and a stored
// entry of size bytes.
func makeArchive(dir, entry string, size uint64, pattern string, seed int64) (string, error) {
	path := filepath.Join(dir, "ota.zip")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck // closed explicitly on success

	zw := zip.NewWriter(f)
	meta, err := zw.CreateHeader(&zip.FileHeader{Name: "META-INF/com/android/metadata", Method: zip.Store})
	if err != nil {
		return "", err
	}
	if _, err := meta.Write([]byte("ota-type=AB\n")); err != nil {
		return "", err
	}

	w, err := zw.CreateHeader(&zip.FileHeader{Name: entry, Method: zip.Store})
	if err != nil {
		return "", err
	}
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // intentional use for reproducible benchmarks
	block := make([]byte, 1<<20)
	for written := uint64(0); written < size; {
		n := min(uint64(len(block)), size-written)
		switch pattern {
		case "random":
			if _, err := rng.Read(block[:n]); err != nil {
				return "", err
			}
		default:
			fill := byte('a' + (written>>20)%26)
			for i := range block[:n] {
				block[i] = fill
			}
		}
		if _, err := w.Write(block[:n]); err != nil {
			return "", err
		}
		written += n
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return path, f.Close()
}

func printMetrics(registry *prometheus.Registry) {
	families, err := registry.Gather()
	if err != nil {
		log.Printf("gather metrics: %v", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			value := m.GetCounter().GetValue()
			labels := ""
			for _, l := range m.GetLabel() {
				labels += fmt.Sprintf(" %s=%s", l.GetName(), l.GetValue())
			}
			fmt.Printf("%s%s %s\n", mf.GetName(), labels, humanize.Commaf(value))
		}
	}
}
