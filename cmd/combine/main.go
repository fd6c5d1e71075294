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
	"github.com/sfdeloach/pdf-tools/writer"
)

type options struct {
	inDir    string
	outPath  string
	logPath  string
	password string
	verbose  bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "combine: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "combine: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: combine [flags] <dir>\n")
		flag.PrintDefaults()
	}
	out := flag.String("out", "", "Output file (default <dir>/combined.pdf)")
	logPath := flag.String("log", "", "Log file (default <dir>/combined.log)")
	password := flag.String("password", "", "Password to open encrypted inputs")
	verbose := flag.Bool("v", false, "Log debug details")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return options{}, fmt.Errorf("missing input directory")
	}
	opts.inDir = flag.Arg(0)
	info, err := os.Stat(opts.inDir)
	if err != nil {
		return options{}, err
	}
	if !info.IsDir() {
		return options{}, fmt.Errorf("%s is not a directory", opts.inDir)
	}
	opts.outPath = *out
	if opts.outPath == "" {
		opts.outPath = filepath.Join(opts.inDir, "combined.pdf")
	}
	opts.logPath = *logPath
	if opts.logPath == "" {
		opts.logPath = filepath.Join(opts.inDir, "combined.log")
	}
	opts.password = *password
	opts.verbose = *verbose
	return opts, nil
}

func run(opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logFile, err := os.OpenFile(opts.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
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

	paths, err := pdfFiles(opts.inDir, opts.outPath)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no PDF files found in %s", opts.inDir)
	}

	doc, report, err := assemble.Merge(ctx, paths, assemble.Options{
		InputPassword: opts.password,
		Logger:        log,
		Recorder:      observability.NewTerminalRecorder(os.Stderr, len(paths)),
	})
	for _, f := range report.Failed() {
		fmt.Fprintf(os.Stderr, "skipped %s: %v\n", f.Path, f.Err)
	}
	if err != nil {
		return err
	}
	if err := writer.WriteFile(ctx, doc, opts.outPath, writer.Config{Logger: log}); err != nil {
		return err
	}
	log.Info("combined", observability.String("output", opts.outPath), observability.Int("files", report.Succeeded()))
	fmt.Printf("Combined %d of %d files (%d pages) into %s\n", report.Succeeded(), len(paths), doc.PageCount(), opts.outPath)
	return nil
}

// pdfFiles lists the PDF files of dir sorted by name, ignoring case, and
// leaves out the output file itself.
func pdfFiles(dir, output string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	outAbs, _ := filepath.Abs(output)
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		if abs, _ := filepath.Abs(filepath.Join(dir, e.Name())); abs == outAbs {
			continue
		}
		names = append(names, e.Name())
	}
	sort.SliceStable(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}
