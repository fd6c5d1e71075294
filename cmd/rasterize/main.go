package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sfdeloach/pdf-tools/assemble"
	"github.com/sfdeloach/pdf-tools/observability"
	"github.com/sfdeloach/pdf-tools/raster"
	"github.com/sfdeloach/pdf-tools/writer"
)

type options struct {
	inputs   []string
	outDir   string
	assemble assemble.Options
	verbose  bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rasterize: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "rasterize: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: rasterize [flags] <dir|file.pdf> [<output dir>]\n")
		flag.PrintDefaults()
	}
	dpi := flag.Int("dpi", assemble.DefaultDPI, "Render resolution in dots per inch")
	noise := flag.Float64("noise", 0, "Standard deviation of the Gaussian pixel noise, 0 disables it")
	jpeg := flag.Bool("jpeg", false, "Embed pages as JPEG instead of lossless PNG")
	color := flag.String("color", "gray", "Color space: gray, rgb or cmyk")
	workers := flag.Int("workers", 0, "Files or pages processed at once (default GOMAXPROCS)")
	password := flag.String("password", "", "Password to open encrypted inputs")
	verbose := flag.Bool("v", false, "Log debug details")
	flag.Parse()

	if flag.NArg() < 1 || flag.NArg() > 2 {
		flag.Usage()
		return options{}, fmt.Errorf("expected an input and an optional output directory")
	}
	if *dpi <= 0 {
		return options{}, fmt.Errorf("dpi must be positive, got %d", *dpi)
	}
	if *noise < 0 {
		return options{}, fmt.Errorf("noise must not be negative, got %v", *noise)
	}
	cs, err := raster.ParseColorSpace(*color)
	if err != nil {
		return options{}, err
	}

	in := flag.Arg(0)
	info, err := os.Stat(in)
	if err != nil {
		return options{}, err
	}
	if info.IsDir() {
		opts.inputs, err = pdfFiles(in)
		if err != nil {
			return options{}, err
		}
		if len(opts.inputs) == 0 {
			return options{}, fmt.Errorf("no PDF files found in %s", in)
		}
		opts.outDir = in
	} else {
		opts.inputs = []string{in}
		opts.outDir = filepath.Dir(in)
	}
	if flag.NArg() == 2 {
		opts.outDir = flag.Arg(1)
	}

	opts.assemble = assemble.DefaultOptions()
	opts.assemble.DPI = float64(*dpi)
	opts.assemble.NoiseLevel = *noise
	opts.assemble.ColorSpace = cs
	if *jpeg {
		opts.assemble.Compression = raster.CompressionJPEG
	}
	opts.assemble.Workers = *workers
	opts.assemble.InputPassword = *password
	opts.verbose = *verbose
	return opts, nil
}

func run(opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(opts.outDir, "rasterize.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logFile.Close()
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	log := observability.Tee{
		observability.NewTextLogger(logFile, level),
		observability.NewTextLogger(os.Stderr, slog.LevelWarn),
	}
	opts.assemble.Logger = log
	opts.assemble.Recorder = observability.NewTerminalRecorder(os.Stderr, len(opts.inputs))

	report, err := assemble.RasterizeBatch(ctx, opts.inputs, opts.outDir, opts.assemble, writer.Config{Logger: log})
	for _, f := range report.Files {
		if f.Err == nil {
			fmt.Printf("Successfully created: %s\n", f.Output)
		}
	}
	if failed := report.Failed(); len(failed) > 0 {
		fmt.Printf("\nFailed to process %d file(s):\n", len(failed))
		for _, f := range failed {
			fmt.Printf("- %s: %v\n", filepath.Base(f.Path), f.Err)
		}
	}
	return err
}

func pdfFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
