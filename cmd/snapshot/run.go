package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	errorslib "github.com/goliatone/go-errors"
	"github.com/goliatone/go-snapshot/adapters/chromium"
	"github.com/goliatone/go-snapshot/adapters/pdf"
	"github.com/goliatone/go-snapshot/command"
	"github.com/goliatone/go-snapshot/snapshot"
)

// Exit codes follow Unix conventions: 0 success, 1 general, 2 usage.
const (
	ExitSuccess = 0
	ExitGeneral = 1
	ExitUsage   = 2
	ExitIO      = 3
	ExitBrowser = 4
)

// environment holds the process dependencies run needs.
type environment struct {
	Stdout io.Writer
	Stderr io.Writer
	Now    func() time.Time
	// Surfaces opens capture surfaces; nil means a Chromium browser.
	Surfaces func(flags *cliFlags) (snapshot.SurfaceFactory, snapshotpdf.Engine, io.Closer)
}

func newEnvironment() *environment {
	return &environment{
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		Now:      time.Now,
		Surfaces: chromiumSurfaces,
	}
}

func chromiumSurfaces(flags *cliFlags) (snapshot.SurfaceFactory, snapshotpdf.Engine, io.Closer) {
	browser := snapshotchromium.NewBrowser(flags.chrome)
	browser.Timeout = flags.timeout
	browser.BlockExternal = flags.block
	if flags.verbose {
		browser.Logger = stderrLogger{}
	}

	var engine snapshotpdf.Engine = snapshotpdf.PDFCPUEngine{}
	if flags.pdfEngine == "chromium" {
		engine = snapshotchromium.PrintEngine{Browser: browser}
	}
	return browser, engine, browser
}

func run(ctx context.Context, args []string, env *environment) error {
	flags, err := parseFlags(args, env.Stderr)
	if err != nil {
		return err
	}
	if flags.list {
		return printFormats(env.Stdout, snapshot.NewDefaultFormatRegistry())
	}

	markup, err := os.ReadFile(flags.input)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	if err := os.MkdirAll(flags.outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	open := env.Surfaces
	if open == nil {
		open = chromiumSurfaces
	}
	surfaces, engine, closer := open(flags)
	if closer != nil {
		defer closer.Close()
	}

	var logger snapshot.Logger = snapshot.NopLogger{}
	if flags.verbose {
		logger = stderrLogger{w: env.Stderr}
	}

	o := snapshot.NewOrchestrator(surfaces)
	o.Logger = logger
	o.Preloader = snapshot.Preloader{Timeout: flags.preload, Logger: logger}
	if env.Now != nil {
		o.Now = env.Now
	}
	if engine != nil {
		if err := o.Packagers.Register(snapshot.OutputPDF, snapshotpdf.Packager{Engine: engine, Verify: true}); err != nil {
			return err
		}
	}

	doc := snapshot.VisualDocument{
		Ref:          documentRef(flags),
		Kind:         flags.kind,
		HTML:         markup,
		RootSelector: flags.selector,
		BaseURL:      baseURL(flags.input),
		Width:        flags.width,
		Height:       flags.height,
	}

	handler := command.NewExportSnapshotHandler(o)
	for _, format := range flags.formats {
		var out bytes.Buffer
		var result snapshot.ExportResult
		msg := command.ExportSnapshot{
			Request: snapshot.ExportRequest{
				Document:     doc,
				Format:       snapshot.FormatID(strings.ToLower(strings.TrimSpace(format))),
				CaptureScale: flags.scale,
				Filename:     flags.filename,
				Output:       &out,
			},
			Result: &result,
		}
		if err := msg.Validate(); err != nil {
			return err
		}
		if err := handler.Execute(ctx, msg); err != nil {
			return fmt.Errorf("%s: %w", format, err)
		}

		target := filepath.Join(flags.outDir, result.Filename)
		if err := writeFileAtomic(target, out.Bytes()); err != nil {
			return fmt.Errorf("write %s: %w", result.Filename, err)
		}
		fmt.Fprintf(env.Stdout, "%s\t%dx%d\t%s\n", result.Format, result.Width, result.Height, target)
	}
	return nil
}

func printFormats(w io.Writer, registry *snapshot.FormatRegistry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOUTPUT\tSIZE\tSCALE\tLABEL")
	for _, f := range registry.List() {
		size := fmt.Sprintf("%dx%d", f.Width, f.Height)
		if f.Page != nil {
			size = fmt.Sprintf("%gx%gpt", f.Page.WidthPt, f.Page.HeightPt)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n", f.ID, f.Output, size, f.CaptureScale, f.Label)
	}
	return tw.Flush()
}

func documentRef(flags *cliFlags) string {
	if flags.ref != "" {
		return flags.ref
	}
	return strings.TrimSuffix(filepath.Base(flags.input), filepath.Ext(flags.input))
}

// baseURL points relative asset links at the input file's directory.
func baseURL(input string) string {
	dir, err := filepath.Abs(filepath.Dir(input))
	if err != nil {
		return ""
	}
	return "file://" + filepath.ToSlash(dir) + "/"
}

func writeFileAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".snapshot-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if errors.Is(err, errUsage) {
		return ExitUsage
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return ExitIO
	}
	var ge *errorslib.Error
	if errors.As(err, &ge) && ge.Category == errorslib.CategoryValidation {
		return ExitUsage
	}
	switch snapshot.KindFromError(err) {
	case snapshot.KindValidation:
		return ExitUsage
	case snapshot.KindCapture:
		return ExitBrowser
	}
	return ExitGeneral
}

type stderrLogger struct {
	w io.Writer
}

func (l stderrLogger) writer() io.Writer {
	if l.w != nil {
		return l.w
	}
	return os.Stderr
}

func (l stderrLogger) Debugf(format string, args ...any) {
	fmt.Fprintf(l.writer(), "debug: "+format+"\n", args...)
}

func (l stderrLogger) Infof(format string, args ...any) {
	fmt.Fprintf(l.writer(), "info: "+format+"\n", args...)
}

func (l stderrLogger) Errorf(format string, args ...any) {
	fmt.Fprintf(l.writer(), "error: "+format+"\n", args...)
}
