package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"folio/pkg/config"
	"folio/pkg/images"
	"folio/pkg/layout"
	"folio/pkg/render"
	"folio/pkg/source"
	"folio/pkg/text"
)

// viewer holds the document being shown.
type viewer struct {
	cfg *config.Config
	log *zap.Logger

	renderer *render.Renderer
	doc      *layout.Document
	page     int
}

func (v *viewer) open(path string) error {
	fonts := text.NewMeasurer()
	if v.cfg.Layout.FontPath != "" {
		var err error
		if fonts, err = text.LoadMeasurer(v.cfg.Layout.FontPath); err != nil {
			return err
		}
	}
	loader := images.NewLoader(filepath.Dir(path))
	src, err := source.LoadFile(path, source.Options{Measurer: fonts, Images: loader, FontSize: v.cfg.Layout.FontSize})
	if err != nil {
		return err
	}

	page := src.PageConfig(v.cfg.PageLayout())
	doc, err := layout.New(src.Arena, page, layout.WithLogger(v.log), layout.WithMode(v.cfg.LayoutMode())).
		Layout(context.Background())
	if err != nil {
		return err
	}

	opts := render.Options{Scale: v.cfg.Render.Scale, DrawLines: v.cfg.Render.DrawLines, DrawImages: v.cfg.Render.DrawImages}
	v.renderer = render.NewRenderer(src.Arena, fonts, loader, opts)
	v.doc = doc
	v.page = 0
	return nil
}

func (v *viewer) current() (image.Image, error) {
	if v.doc == nil || len(v.doc.Pages) == 0 {
		return nil, fmt.Errorf("nothing to show")
	}
	return v.renderer.Page(v.doc, v.page)
}

func main() {
	configFile := flag.String("c", "", "load configuration from `FILE` (YAML)")
	flag.Parse()

	cfg, err := config.LoadConfiguration(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to prepare configuration: %v\n", err)
		os.Exit(1)
	}
	log, err := cfg.Logging.Prepare()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to prepare logs: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	v := &viewer{cfg: cfg, log: log}

	a := app.New()
	w := a.NewWindow("folio viewer")
	w.Resize(fyne.NewSize(900, 1000))

	canvasImg := canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, 1, 1)))
	canvasImg.FillMode = canvas.ImageFillContain
	status := widget.NewLabel("Enter a document path and press Enter")

	show := func() {
		img, err := v.current()
		if err != nil {
			status.SetText("Error: " + err.Error())
			return
		}
		canvasImg.Image = img
		canvasImg.Refresh()
		p := v.doc.Pages[v.page]
		msg := fmt.Sprintf("page %d of %d", v.page+1, len(v.doc.Pages))
		if p.Overflow {
			msg += " (overflow)"
		}
		status.SetText(msg)
	}

	pathEntry := widget.NewEntry()
	pathEntry.SetPlaceHolder("document.yaml")
	pathEntry.OnSubmitted = func(path string) {
		status.SetText("Loading " + path + "...")
		if err := v.open(path); err != nil {
			status.SetText("Error: " + err.Error())
			return
		}
		w.SetTitle("folio viewer: " + filepath.Base(path))
		show()
	}

	prev := widget.NewButton("Previous", func() {
		if v.doc != nil && v.page > 0 {
			v.page--
			show()
		}
	})
	next := widget.NewButton("Next", func() {
		if v.doc != nil && v.page+1 < len(v.doc.Pages) {
			v.page++
			show()
		}
	})

	topBar := container.NewBorder(nil, nil, nil, container.NewHBox(prev, next), pathEntry)
	w.SetContent(container.NewBorder(topBar, status, nil, nil, canvasImg))

	if flag.NArg() > 0 {
		pathEntry.SetText(flag.Arg(0))
		pathEntry.OnSubmitted(flag.Arg(0))
	}

	// keep focus on the entry, the window has no other focusable widget at start
	w.Canvas().Focus(pathEntry)
	w.ShowAndRun()
}
