package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vearutop/fiatlux"
	"github.com/vearutop/fiatlux/internal/config"
	"golang.org/x/sync/errgroup"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		fail(err)
	}
	fiatlux.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	switch os.Args[1] {
	case "develop":
		err = runDevelop(ctx, cfg, os.Args[2:])
	case "preview":
		err = runPreview(os.Args[2:])
	case "info":
		err = runInfo(ctx, cfg, os.Args[2:])
	case "histogram":
		err = runHistogram(ctx, cfg, os.Args[2:])
	case "history":
		err = runHistory(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fail(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: fiatlux <command> [args]")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  develop   -dir photos -out exported [-in a.nef,b.nef] [-q 92] [-border white] [-border-width 5] [-max-edge 2048]")
	fmt.Fprintln(os.Stderr, "  preview   -in photo.nef -out preview.jpg")
	fmt.Fprintln(os.Stderr, "  info      -in photo.nef")
	fmt.Fprintln(os.Stderr, "  histogram -in photo.nef [-width 64]")
	fmt.Fprintln(os.Stderr, "  history   -in photo.nef")
	fmt.Fprintln(os.Stderr, "Settings are read from FIATLUX_* environment variables or the file in FIATLUX_CONFIG.")
}

func newDecoder(cfg *config.Config) *fiatlux.RawDecoder {
	return fiatlux.NewRawDecoder(fiatlux.WithConverter(fiatlux.DcrawConverter{Path: cfg.DcrawPath}))
}

func newPipeline(cfg *config.Config) (*fiatlux.Pipeline, error) {
	return fiatlux.NewPipeline(fiatlux.NewSoftwareDevice(func(o *fiatlux.SoftwareOptions) {
		o.Workers = cfg.Workers
	}))
}

func runDevelop(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("develop", flag.ContinueOnError)
	dir := fs.String("dir", "", "folder with RAW files and their edits")
	in := fs.String("in", "", "comma-separated file names inside -dir, default all")
	outDir := fs.String("out", "", "output folder for JPEGs")
	q := fs.Int("q", cfg.Export.Quality, "JPEG quality")
	border := fs.String("border", cfg.Export.Border, "border color: none, white, black")
	borderWidth := fs.Float64("border-width", cfg.Export.BorderWidth, "border width, percent of the shorter edge")
	maxEdge := fs.Uint("max-edge", cfg.Export.MaxEdge, "limit the longer edge, 0 keeps full size")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" || *outDir == "" {
		return errors.New("missing required arguments")
	}

	b, err := fiatlux.ParseBorder(*border)
	if err != nil {
		return err
	}
	opts := fiatlux.ExportOptions{Quality: *q, Border: b, BorderWidth: *borderWidth, MaxEdge: *maxEdge}

	names, err := developNames(*dir, *in)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	dec := newDecoder(cfg)
	store := fiatlux.NewFolderStore(*dir)

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	start := time.Now()
	for _, name := range names {
		g.Go(func() error {
			return developOne(ctx, dec, p, store, *dir, *outDir, name, opts)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("developed %d images in %s\n", len(names), time.Since(start).Round(time.Millisecond))
	return nil
}

func developNames(dir, in string) ([]string, error) {
	if in != "" {
		return strings.Split(in, ","), nil
	}
	cat, err := fiatlux.NewDirCatalog(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, cat.Len())
	for i := 0; i < cat.Len(); i++ {
		names = append(names, cat.Name(i))
	}
	return names, nil
}

func developOne(ctx context.Context, dec fiatlux.Decoder, p *fiatlux.Pipeline, store fiatlux.EditStore,
	dir, outDir, name string, opts fiatlux.ExportOptions,
) error {
	buf, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	img, err := dec.Decode(ctx, buf, false)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	params, _, err := fiatlux.LoadEdits(store, name)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	outPath := filepath.Join(outDir, strings.TrimSuffix(name, filepath.Ext(name))+".jpg")
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := fiatlux.Export(f, p, img, params, opts); err != nil {
		_ = f.Close()
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	if st, err := os.Stat(outPath); err == nil {
		fmt.Printf("%s -> %s (%s, %s)\n", name, outPath, img.Strategy, humanize.Bytes(uint64(st.Size())))
	}
	return nil
}

func runPreview(args []string) error {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	inPath := fs.String("in", "", "input RAW file")
	outPath := fs.String("out", "", "output JPEG")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" || *outPath == "" {
		return errors.New("missing required arguments")
	}
	buf, err := os.ReadFile(*inPath)
	if err != nil {
		return err
	}
	data, err := fiatlux.ExtractEmbeddedPreview(buf)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*outPath, data, 0o600); err != nil {
		return err
	}
	fmt.Printf("wrote %s preview to %s\n", humanize.Bytes(uint64(len(data))), *outPath)
	return nil
}

func runInfo(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	inPath := fs.String("in", "", "input RAW file")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" {
		return errors.New("missing required arguments")
	}
	buf, err := os.ReadFile(*inPath)
	if err != nil {
		return err
	}

	md := fiatlux.ExtractMetadata(ctx, fiatlux.DcrawConverter{Path: cfg.DcrawPath}, buf)
	out := struct {
		fiatlux.Metadata
		File       string `json:"file"`
		Size       string `json:"size"`
		Megapixels string `json:"megapixels,omitempty"`
		Edited     bool   `json:"edited"`
	}{
		Metadata: md,
		File:     filepath.Base(*inPath),
		Size:     humanize.Bytes(uint64(len(buf))),
		Edited:   fiatlux.NewFolderStore(filepath.Dir(*inPath)).Has(filepath.Base(*inPath)),
	}
	if md.Width > 0 && md.Height > 0 {
		out.Megapixels = humanize.SIWithDigits(float64(md.Width*md.Height), 1, "px")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runHistogram(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("histogram", flag.ContinueOnError)
	inPath := fs.String("in", "", "input RAW file")
	width := fs.Int("width", 64, "bar width in characters")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" || *width <= 0 {
		return errors.New("missing required arguments")
	}
	buf, err := os.ReadFile(*inPath)
	if err != nil {
		return err
	}
	img, err := newDecoder(cfg).Decode(ctx, buf, true)
	if err != nil {
		return err
	}
	params, _, err := fiatlux.LoadEdits(fiatlux.NewFolderStore(filepath.Dir(*inPath)), filepath.Base(*inPath))
	if err != nil {
		return err
	}

	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	rendered, err := p.RenderImage(img, params, fiatlux.RenderOptions{})
	if err != nil {
		return err
	}

	s := fiatlux.NewHistogramSampler()
	s.Update(rendered, rendered.Bounds())
	h := s.Latest()
	if h == nil {
		return errors.New("empty image")
	}
	d := h.Display()

	// 32 rows of 8 bins each.
	const group = 8
	for i := 0; i < fiatlux.HistogramBins; i += group {
		v := 0.0
		for j := i; j < i+group; j++ {
			v = max(v, d.Lum[j])
		}
		fmt.Printf("%3d-%3d %s\n", i, i+group-1, strings.Repeat("#", int(v*float64(*width)+0.5)))
	}
	fmt.Printf("samples %s, range %d..%d\n", humanize.Comma(int64(h.Samples)), d.Lo, d.Hi)
	return nil
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	inPath := fs.String("in", "", "input RAW file")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" {
		return errors.New("missing required arguments")
	}

	store := fiatlux.NewFolderStore(filepath.Dir(*inPath))
	rec, err := store.Load(filepath.Base(*inPath))
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Println("no edits")
		return nil
	}

	now := time.Now()
	fmt.Printf("last modified %s, %d edited parameters\n", relativeOrDate(rec.LastModified, now), len(rec.Edits))
	if rec.History == nil {
		return nil
	}
	for i, e := range rec.History.Entries {
		mark := " "
		if i == rec.History.Index {
			mark = "*"
		}
		fmt.Printf("%s %3d %-24s %s\n", mark, i, e.Label, fiatlux.RelativeTime(e.Timestamp, now))
	}
	return nil
}

// relativeOrDate prints a relative time within a day and a date otherwise.
func relativeOrDate(t, now time.Time) string {
	if now.Sub(t) < 24*time.Hour {
		return fiatlux.RelativeTime(t, now)
	}
	return humanize.Time(t)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
