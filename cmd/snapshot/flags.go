package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
)

var (
	// errHelp is returned when usage was requested.
	errHelp = errors.New("help requested")
	// errUsage wraps invalid flag combinations.
	errUsage = errors.New("usage")
)

type cliFlags struct {
	formats   []string
	input     string
	selector  string
	width     int
	height    int
	outDir    string
	ref       string
	kind      string
	scale     float64
	filename  string
	chrome    string
	pdfEngine string
	timeout   time.Duration
	preload   time.Duration
	block     bool
	list      bool
	verbose   bool
}

func buildFlagSet(flags *cliFlags, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringSliceVarP(&flags.formats, "format", "f", nil, "target format id (repeatable or comma separated)")
	fs.StringVarP(&flags.input, "in", "i", "", "HTML file containing the document")
	fs.StringVarP(&flags.selector, "selector", "s", "", "selector of the document root (#id, .class, tag)")
	fs.IntVar(&flags.width, "width", 0, "authored document width in px")
	fs.IntVar(&flags.height, "height", 0, "authored document height in px")
	fs.StringVarP(&flags.outDir, "out", "o", ".", "output directory")
	fs.StringVar(&flags.ref, "ref", "", "document reference (defaults to the input file name)")
	fs.StringVar(&flags.kind, "kind", "document", "document kind used in file names")
	fs.Float64Var(&flags.scale, "scale", 0, "capture scale override (>= 1)")
	fs.StringVar(&flags.filename, "filename", "", "file name template override")
	fs.StringVar(&flags.chrome, "chrome", "", "path to a Chrome or Chromium binary")
	fs.StringVar(&flags.pdfEngine, "pdf-engine", "pdfcpu", "print engine: pdfcpu or chromium")
	fs.DurationVar(&flags.timeout, "timeout", 30*time.Second, "page load and print timeout")
	fs.DurationVar(&flags.preload, "preload-timeout", 15*time.Second, "soft timeout for image preloading")
	fs.BoolVar(&flags.block, "block-external", false, "block http(s) requests from the capture page")
	fs.BoolVar(&flags.list, "list-formats", false, "print the format catalog and exit")
	fs.BoolVarP(&flags.verbose, "verbose", "v", false, "log pipeline progress to stderr")
	return fs
}

func parseFlags(args []string, stderr io.Writer) (*cliFlags, error) {
	flags := &cliFlags{}
	fs := buildFlagSet(flags, stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, errHelp
		}
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	if flags.list {
		return flags, nil
	}
	if flags.input == "" && fs.NArg() > 0 {
		flags.input = fs.Arg(0)
	}
	if err := flags.validate(); err != nil {
		return nil, err
	}
	return flags, nil
}

func (f *cliFlags) validate() error {
	var missing []string
	if len(f.formats) == 0 {
		missing = append(missing, "--format")
	}
	if f.input == "" {
		missing = append(missing, "--in")
	}
	if f.selector == "" {
		missing = append(missing, "--selector")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required flags: %s", errUsage, strings.Join(missing, ", "))
	}
	if f.width <= 0 || f.height <= 0 {
		return fmt.Errorf("%w: --width and --height must be positive", errUsage)
	}
	if f.scale != 0 && f.scale < 1 {
		return fmt.Errorf("%w: --scale must be >= 1", errUsage)
	}
	switch f.pdfEngine {
	case "pdfcpu", "chromium":
	default:
		return fmt.Errorf("%w: unknown --pdf-engine %q", errUsage, f.pdfEngine)
	}
	return nil
}
