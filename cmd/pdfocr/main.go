package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/sfdeloach/pdf-tools/ir"
	"github.com/sfdeloach/pdf-tools/observability"
	"github.com/sfdeloach/pdf-tools/ocr"
	_ "github.com/sfdeloach/pdf-tools/ocr/tesseract"
	"github.com/sfdeloach/pdf-tools/raster"
	"github.com/sfdeloach/pdf-tools/render"
)

type options struct {
	pdfPath  string
	outPath  string
	dpi      int
	langs    []string
	password string
	verbose  bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfocr: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "pdfocr: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: pdfocr [flags] <pdf>\n")
		flag.PrintDefaults()
	}
	out := flag.String("o", "converted.txt", "Output text file")
	dpi := flag.Int("dpi", 300, "Render resolution; higher is more accurate but slower")
	lang := flag.String("lang", "eng", "Comma-separated Tesseract languages")
	password := flag.String("password", "", "Password to open an encrypted input")
	verbose := flag.Bool("v", false, "Log debug details to stderr")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return options{}, fmt.Errorf("missing pdf path")
	}
	if *dpi <= 0 {
		return options{}, fmt.Errorf("dpi must be positive, got %d", *dpi)
	}
	opts.pdfPath = flag.Arg(0)
	if !strings.EqualFold(filepath.Ext(opts.pdfPath), ".pdf") {
		fmt.Fprintln(os.Stderr, "pdfocr: warning: input file does not have a .pdf extension")
	}
	opts.outPath = *out
	opts.dpi = *dpi
	for _, l := range strings.Split(*lang, ",") {
		if l = strings.TrimSpace(l); l != "" {
			opts.langs = append(opts.langs, l)
		}
	}
	opts.password = *password
	opts.verbose = *verbose
	return opts, nil
}

func run(opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	log := observability.NewTextLogger(os.Stderr, level)

	doc, err := ir.OpenFile(ctx, opts.pdfPath, ir.WithLogger(log), ir.WithPassword(opts.password))
	if err != nil {
		return err
	}
	engine := ocr.DefaultEngine()
	n := doc.PageCount()
	fmt.Printf("Processing %d page(s) with OCR (DPI: %d)...\n", n, opts.dpi)

	results := make([]ocr.Result, 0, n)
	for i, p := range doc.Pages() {
		fmt.Printf("  Processing page %d/%d...\r", i+1, n)
		buf, err := render.Render(ctx, p, render.Options{DPI: float64(opts.dpi), ColorSpace: raster.Gray, Logger: log})
		if err != nil {
			return fmt.Errorf("render page %d: %w", i+1, err)
		}
		res, err := ocr.RecognizePage(ctx, engine, buf, i, ocr.WithDPI(opts.dpi), ocr.WithLanguages(opts.langs...))
		if err != nil {
			return err
		}
		results = append(results, res)
	}

	text := ocr.JoinPages(results)
	fmt.Printf("\nWriting text to %s...\n", opts.outPath)
	if err := os.WriteFile(opts.outPath, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Printf("Extracted text to %s\n  Total characters: %d\n", opts.outPath, len([]rune(text)))
	return nil
}
