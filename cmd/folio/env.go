package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"folio/pkg/config"
	"folio/pkg/images"
	"folio/pkg/layout"
	"folio/pkg/source"
	"folio/pkg/text"
)

type envKey struct{}

// localEnv keeps everything the program needs in a single place.
type localEnv struct {
	Cfg *config.Config
	Log *zap.Logger

	start         time.Time
	restoreStdLog func()
}

func envFromContext(ctx context.Context) *localEnv {
	if env, ok := ctx.Value(envKey{}).(*localEnv); ok {
		return env
	}
	panic("localenv not found in context")
}

func contextWithEnv(ctx context.Context) context.Context {
	return context.WithValue(ctx, envKey{}, &localEnv{start: time.Now(), Log: zap.NewNop()})
}

func (e *localEnv) uptime() time.Duration {
	return time.Since(e.start)
}

func (e *localEnv) redirectStdLog() {
	e.restoreStdLog = zap.RedirectStdLog(e.Log)
}

func (e *localEnv) restoreLog() {
	_ = e.Log.Sync()
	if e.restoreStdLog != nil {
		e.restoreStdLog()
	}
}

// measurer returns a new text measurer. Faces are not shared between
// concurrent jobs, so every document gets its own.
func (e *localEnv) measurer() (*text.Measurer, error) {
	if e.Cfg.Layout.FontPath == "" {
		return text.NewMeasurer(), nil
	}
	return text.LoadMeasurer(e.Cfg.Layout.FontPath)
}

// job is one loaded document together with its engine.
type job struct {
	path   string
	doc    *source.Document
	fonts  *text.Measurer
	images *images.Loader
	engine *layout.Engine
}

func (e *localEnv) open(path string) (*job, error) {
	fonts, err := e.measurer()
	if err != nil {
		return nil, err
	}
	j := &job{path: path, fonts: fonts, images: images.NewLoader(filepath.Dir(path))}
	j.doc, err = source.LoadFile(path, source.Options{Measurer: fonts, Images: j.images, FontSize: e.Cfg.Layout.FontSize})
	if err != nil {
		return nil, err
	}

	page := j.doc.PageConfig(e.Cfg.PageLayout())
	if page.Width <= 0 || page.Height <= 0 {
		return nil, fmt.Errorf("%s: page must have positive width and height", path)
	}

	j.engine = layout.New(j.doc.Arena, page,
		layout.WithLogger(e.Log.With(zap.String("document", path))),
		layout.WithMode(e.Cfg.LayoutMode()))
	return j, nil
}
