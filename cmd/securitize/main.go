package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/sfdeloach/pdf-tools/assemble"
	"github.com/sfdeloach/pdf-tools/ir"
	"github.com/sfdeloach/pdf-tools/observability"
	"github.com/sfdeloach/pdf-tools/security"
	"github.com/sfdeloach/pdf-tools/writer"
)

type options struct {
	inPath   string
	outPath  string
	assemble assemble.Options
	verbose  bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "securitize: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "securitize: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: securitize [flags] <input.pdf> [<output.pdf>]\n")
		flag.PrintDefaults()
	}
	watermark := flag.String("watermark", "", "Diagonal watermark text")
	footer := flag.String("footer", "", "Footer text in the bottom right corner")
	numbers := flag.Bool("numbers", false, "Number the pages")
	keywords := flag.String("keywords", "", "Keywords metadata (comma-separated)")
	password := flag.String("password", "", "User password to encrypt the output")
	askPassword := flag.Bool("ask-password", false, "Prompt for the user password")
	keyLength := flag.Int("keylength", 128, "Encryption key length: 40, 128 or 256")
	aes := flag.Bool("aes", false, "Use AES instead of RC4 for 128-bit keys")
	inputPassword := flag.String("input-password", "", "Password to open an encrypted input")
	verbose := flag.Bool("v", false, "Log debug details")
	flag.Parse()

	if flag.NArg() < 1 || flag.NArg() > 2 {
		flag.Usage()
		return options{}, fmt.Errorf("expected an input file and an optional output file")
	}
	opts.inPath = flag.Arg(0)
	if flag.NArg() == 2 {
		opts.outPath = flag.Arg(1)
	} else {
		base := strings.TrimSuffix(opts.inPath, filepath.Ext(opts.inPath))
		opts.outPath = base + "_secured.pdf"
	}
	if *password != "" && *askPassword {
		return options{}, errors.New("-password and -ask-password are mutually exclusive")
	}

	a := assemble.DefaultOptions()
	a.Watermark = *watermark
	a.Footer = *footer
	a.AddPageNumbers = *numbers
	a.Keywords = *keywords
	a.Password = *password
	a.KeyLength = *keyLength
	if *aes {
		a.Cipher = security.CipherAES
	}
	a.InputPassword = *inputPassword
	if *askPassword {
		pwd, err := promptPassword()
		if err != nil {
			return options{}, err
		}
		a.Password = pwd
	}
	opts.assemble = a
	opts.verbose = *verbose
	return opts, nil
}

// promptPassword reads the password twice from the terminal without echo.
func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("-ask-password needs a terminal")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	fmt.Fprint(os.Stderr, "Repeat password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	if len(first) == 0 {
		return "", errors.New("empty password")
	}
	return string(first), nil
}

func run(opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logFile, err := os.OpenFile(filepath.Join(filepath.Dir(opts.outPath), "securitize.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
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

	doc, err := ir.OpenFile(ctx, opts.inPath, ir.WithLogger(log), ir.WithPassword(opts.assemble.InputPassword))
	if err != nil {
		return err
	}
	doc, err = assemble.Stamp(ctx, doc, opts.assemble)
	if err != nil {
		return err
	}
	if err := writer.WriteFile(ctx, doc, opts.outPath, writer.Config{Logger: log}); err != nil {
		return err
	}
	log.Info("secured",
		observability.String("input", opts.inPath),
		observability.String("output", opts.outPath),
		observability.Bool("encrypted", doc.Encryption != nil),
	)
	fmt.Printf("Secured PDF saved as %s\n", opts.outPath)
	return nil
}
