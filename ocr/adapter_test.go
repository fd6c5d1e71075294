package ocr

import (
	"bytes"
	"context"
	"image/png"
	"reflect"
	"testing"

	"github.com/sfdeloach/pdf-tools/raster"
)

func TestInputFromPixels(t *testing.T) {
	buf := raster.New(4, 3, raster.RGB)
	region := Region{X: 0, Y: 0, Width: 2, Height: 2}
	meta := map[string]string{"psm": "6"}

	in, err := InputFromPixels(
		buf, 2,
		WithLanguages("eng", "spa"),
		WithRegion(region),
		WithDPI(300),
		WithMetadata(meta),
	)
	if err != nil {
		t.Fatalf("InputFromPixels() error = %v", err)
	}
	if in.Format != ImageFormatPNG {
		t.Fatalf("unexpected format: %v", in.Format)
	}
	if in.PageIndex != 2 {
		t.Fatalf("unexpected page index: %d", in.PageIndex)
	}
	if got := in.ID; got != "page-2" {
		t.Fatalf("unexpected id: %s", got)
	}
	img, err := png.Decode(bytes.NewReader(in.Image))
	if err != nil {
		t.Fatalf("decode image: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Fatalf("image bounds %v", b)
	}
	if !reflect.DeepEqual(in.Languages, []string{"eng", "spa"}) {
		t.Fatalf("unexpected languages: %+v", in.Languages)
	}
	if in.Region == nil || *in.Region != region {
		t.Fatalf("unexpected region: %#v", in.Region)
	}
	if in.DPI != 300 {
		t.Fatalf("unexpected dpi: %d", in.DPI)
	}
	meta["psm"] = "7"
	if in.Metadata["psm"] != "6" {
		t.Fatalf("metadata was not copied: %+v", in.Metadata)
	}
}

func TestInputFromPixelsCMYK(t *testing.T) {
	in, err := InputFromPixels(raster.New(2, 2, raster.CMYK), 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := png.Decode(bytes.NewReader(in.Image)); err != nil {
		t.Fatalf("decode image: %v", err)
	}
}

func TestWithRegionClearsEmpty(t *testing.T) {
	in := Input{Region: &Region{X: 1, Y: 1, Width: 2, Height: 2}}
	WithRegion(Region{})(&in)
	if in.Region != nil {
		t.Fatalf("expected nil region for empty input, got %#v", in.Region)
	}
}

type echoEngine struct{ seen []Input }

func (e *echoEngine) Name() string { return "echo" }

func (e *echoEngine) Recognize(ctx context.Context, in Input) (Result, error) {
	e.seen = append(e.seen, in)
	return Result{InputID: in.ID, PlainText: "text of " + in.ID}, nil
}

func TestRecognizePages(t *testing.T) {
	pages := []*raster.PixelBuffer{
		raster.New(2, 2, raster.Gray),
		raster.New(2, 2, raster.Gray),
	}
	engine := &echoEngine{}
	results, err := RecognizePages(context.Background(), engine, pages, WithDPI(300))
	if err != nil {
		t.Fatal(err)
	}
	if len(engine.seen) != 2 || engine.seen[1].DPI != 300 {
		t.Fatalf("engine saw %+v", engine.seen)
	}
	want := "text of page-0" + PageBreak + "text of page-1"
	if got := JoinPages(results); got != want {
		t.Fatalf("JoinPages() = %q, want %q", got, want)
	}
}

func TestRecognizePagesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RecognizePages(ctx, &echoEngine{}, []*raster.PixelBuffer{raster.New(1, 1, raster.Gray)})
	if err != context.Canceled {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestDefaultEngineIsNoop(t *testing.T) {
	res, err := DefaultEngine().Recognize(context.Background(), Input{ID: "x"})
	if err != nil || res.InputID != "x" || res.PlainText != "" {
		t.Fatalf("noop engine returned %+v, %v", res, err)
	}
}
