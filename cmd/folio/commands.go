package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"folio/pkg/config"
	"folio/pkg/layout"
	"folio/pkg/render"
	"folio/pkg/source"
	"folio/pkg/tree"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// output opens the destination, STDOUT when name is empty.
func output(name string) (io.WriteCloser, error) {
	if name == "" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("unable to create destination file '%s': %w", name, err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func writeGeometry(w io.Writer, doc *layout.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode geometry: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("unable to write geometry: %w", err)
	}
	return nil
}

// saveGeometry writes the geometry of doc to the named file, or to stdout
// when name is empty. A failure to close the file is reported.
func saveGeometry(name string, doc *layout.Document) (err error) {
	out, err := output(name)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(out))
	return writeGeometry(out, doc)
}

// outputBase is the name outputs of src are written under.
func outputBase(src string) string {
	return strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
}

// checkOutputNames rejects sources whose outputs would overwrite each other
// in a shared destination directory.
func checkOutputNames(sources []string) error {
	seen := make(map[string]string, len(sources))
	for _, src := range sources {
		base := outputBase(src)
		if prev, ok := seen[base]; ok {
			return fmt.Errorf("%s and %s would both be written as %q", prev, src, base)
		}
		seen[base] = src
	}
	return nil
}

func reportWarnings(log *zap.Logger, doc *layout.Document) {
	if err := doc.Err(); err != nil {
		log.Warn("Layout finished with warnings", zap.Int("count", len(doc.Warnings)), zap.Error(err))
	}
}

func runLayout(ctx context.Context, cmd *cli.Command) error {
	env := envFromContext(ctx)
	if cmd.Args().Len() == 0 {
		return errors.New("no source document specified")
	}
	if cmd.Args().Len() > 2 {
		env.Log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	j, err := env.open(cmd.Args().Get(0))
	if err != nil {
		return err
	}
	doc, err := j.engine.Layout(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", j.path, err)
	}
	reportWarnings(env.Log, doc)

	env.Log.Info("Layout complete", zap.String("source", j.path), zap.Int("pages", len(doc.Pages)))
	return saveGeometry(cmd.Args().Get(1), doc)
}

func renderOptions(cfg *config.Config) render.Options {
	return render.Options{
		Scale:      cfg.Render.Scale,
		DrawLines:  cfg.Render.DrawLines,
		DrawImages: cfg.Render.DrawImages,
	}
}

// renderPages writes one PNG per page (or just the requested one) into dir.
func renderPages(env *localEnv, j *job, doc *layout.Document, dir string, only int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("unable to create destination directory: %w", err)
	}
	r := render.NewRenderer(j.doc.Arena, j.fonts, j.images, renderOptions(env.Cfg))
	base := outputBase(j.path)

	for i := range doc.Pages {
		if only > 0 && i+1 != only {
			continue
		}
		name := filepath.Join(dir, fmt.Sprintf("%s-%03d.png", base, i+1))
		if err := r.SavePNG(name, doc, i); err != nil {
			return fmt.Errorf("unable to save page %d: %w", i+1, err)
		}
		env.Log.Debug("Page saved", zap.String("file", name))
	}
	return nil
}

func runRender(ctx context.Context, cmd *cli.Command) error {
	env := envFromContext(ctx)
	if cmd.Args().Len() == 0 {
		return errors.New("no source document specified")
	}
	dir := cmd.Args().Get(1)
	if dir == "" {
		dir = "."
	}
	if s := cmd.Float("scale"); s > 0 {
		env.Cfg.Render.Scale = s
	}

	j, err := env.open(cmd.Args().Get(0))
	if err != nil {
		return err
	}
	doc, err := j.engine.Layout(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", j.path, err)
	}
	reportWarnings(env.Log, doc)

	page := int(cmd.Int("page"))
	if page > len(doc.Pages) {
		return fmt.Errorf("page %d requested, document has %d", page, len(doc.Pages))
	}
	if err := renderPages(env, j, doc, dir, page); err != nil {
		return err
	}
	env.Log.Info("Render complete", zap.String("source", j.path), zap.Int("pages", len(doc.Pages)), zap.String("destination", dir))
	return nil
}

func runBatch(ctx context.Context, cmd *cli.Command) error {
	env := envFromContext(ctx)
	sources := cmd.Args().Slice()
	if len(sources) == 0 {
		return errors.New("no source documents specified")
	}
	dir := cmd.String("out")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("unable to create destination directory: %w", err)
	}
	png := cmd.Bool("png")
	if err := checkOutputNames(sources); err != nil {
		return err
	}

	var (
		mu     sync.Mutex
		failed error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(env.Cfg.Workers())

	for _, src := range sources {
		g.Go(func() error {
			err := batchOne(gctx, env, src, dir, png)
			if err == nil {
				return nil
			}
			// cancellation stops the batch, document errors do not
			if errors.Is(err, layout.ErrInterrupted) {
				return err
			}
			env.Log.Error("Document failed", zap.String("source", src), zap.Error(err))
			mu.Lock()
			failed = multierr.Append(failed, err)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	n := len(multierr.Errors(failed))
	env.Log.Info("Batch complete", zap.Int("documents", len(sources)), zap.Int("failed", n), zap.Duration("elapsed", env.uptime()))
	return failed
}

func batchOne(ctx context.Context, env *localEnv, src, dir string, png bool) error {
	j, err := env.open(src)
	if err != nil {
		return err
	}
	doc, err := j.engine.Layout(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}
	reportWarnings(env.Log.With(zap.String("source", src)), doc)

	if err := saveGeometry(filepath.Join(dir, outputBase(src)+".json"), doc); err != nil {
		return err
	}
	if png {
		return renderPages(env, j, doc, dir, 0)
	}
	return nil
}

// runRelayout lays a document out, replaces the children of a named node
// with nodes read from a file and lays it out again, reusing what the edit
// did not touch.
func runRelayout(ctx context.Context, cmd *cli.Command) error {
	env := envFromContext(ctx)
	if cmd.Args().Len() == 0 {
		return errors.New("no source document specified")
	}

	j, err := env.open(cmd.Args().Get(0))
	if err != nil {
		return err
	}
	region, ok := j.doc.Find(cmd.String("region"))
	if !ok {
		return fmt.Errorf("node %q not found", cmd.String("region"))
	}

	f, err := os.Open(cmd.String("nodes"))
	if err != nil {
		return fmt.Errorf("unable to open replacement nodes: %w", err)
	}
	specs, err := source.ParseNodes(f)
	f.Close()
	if err != nil {
		return err
	}

	before, err := j.engine.Layout(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", j.path, err)
	}
	j.engine.ResetStats()

	err = j.engine.ReplaceChildren(region, func(a *tree.Arena, parent tree.Handle) error {
		return j.doc.Build(a, parent, specs)
	})
	if err != nil {
		return fmt.Errorf("unable to replace region: %w", err)
	}
	after, err := j.engine.Layout(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", j.path, err)
	}
	reportWarnings(env.Log, after)

	st := j.engine.Stats()
	env.Log.Info("Relayout complete",
		zap.Int("pages before", len(before.Pages)),
		zap.Int("pages after", len(after.Pages)),
		zap.Int("sizes reused", st.SizesReused),
		zap.Int("flows reused", st.FlowsReused),
		zap.Int("pages reused", st.PagesReused))

	return saveGeometry(cmd.Args().Get(1), after)
}

func outputConfiguration(ctx context.Context, cmd *cli.Command) error {
	env := envFromContext(ctx)
	if cmd.Args().Len() > 1 {
		env.Log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	fname := cmd.Args().Get(0)
	out, err := output(fname)
	if err != nil {
		return err
	}
	defer out.Close()

	var (
		data  []byte
		state string
	)
	if cmd.Bool("default") {
		state = "default"
		data, err = config.Prepare()
	} else {
		state = "actual"
		data, err = config.Dump(env.Cfg)
	}
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	if len(fname) == 0 {
		fname = "STDOUT"
	}
	env.Log.Info("Outputing configuration", zap.String("state", state), zap.String("file", fname))

	if _, err = out.Write(data); err != nil {
		return fmt.Errorf("unable to write configuration: %w", err)
	}
	return nil
}
