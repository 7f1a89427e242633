package raster

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/pagesift/pagesift/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDoc implements document.Document over in-memory fixtures.
type fakeDoc struct {
	pages      int
	objects    map[int][]document.RasterObject
	renderErr  map[int]error
	objectsErr map[int]error
	renders    int
}

func (f *fakeDoc) PageCount() int { return f.pages }

func (f *fakeDoc) TextTokens(int) ([]document.Token, error) { return nil, nil }

func (f *fakeDoc) RasterObjects(page int) ([]document.RasterObject, error) {
	if err := f.objectsErr[page]; err != nil {
		return nil, err
	}
	return f.objects[page], nil
}

func (f *fakeDoc) Rasterize(page int, scale float64) (image.Image, error) {
	f.renders++
	if err := f.renderErr[page]; err != nil {
		return nil, err
	}
	return image.NewGray(image.Rect(0, 0, 200, 300)), nil
}

func (f *fakeDoc) Close() error { return nil }

func grayImage(w, h int) image.Image {
	return image.NewGray(image.Rect(0, 0, w, h))
}

func TestExtractThreshold(t *testing.T) {
	doc := &fakeDoc{
		pages: 1,
		objects: map[int][]document.RasterObject{
			1: {
				{Name: "small", Image: grayImage(40, 40)},
				{Name: "edge", Image: grayImage(50, 50)},
				{Name: "big", Image: grayImage(100, 100)},
				{Name: "nil image"},
			},
		},
	}

	images := NewExtractor(Config{MaxWorkers: 1}).Extract(context.Background(), doc)

	require.Len(t, images, 2)
	assert.Equal(t, KindPage, images[0].Kind)
	assert.Equal(t, KindEmbedded, images[1].Kind)
	assert.Equal(t, 100, images[1].Width)
	assert.Equal(t, 100, images[1].Height)
}

func TestExtractOrdering(t *testing.T) {
	doc := &fakeDoc{
		pages: 3,
		objects: map[int][]document.RasterObject{
			1: {{Name: "a", Image: grayImage(60, 60)}},
			3: {{Name: "b", Image: grayImage(60, 60)}, {Name: "c", Image: grayImage(70, 70)}},
		},
	}

	// Force the pool to actually parallelize.
	images := NewExtractor(Config{MaxWorkers: 3}).Extract(context.Background(), doc)

	require.Len(t, images, 6)
	for i := 1; i < len(images); i++ {
		assert.LessOrEqual(t, images[i-1].Page, images[i].Page)
		if images[i-1].Page == images[i].Page && images[i-1].Kind == KindEmbedded {
			assert.Equal(t, KindEmbedded, images[i].Kind, "page render must sort before embedded")
		}
	}
	assert.Equal(t, KindPage, images[0].Kind)
	assert.Equal(t, 1, images[0].Page)
}

func TestExtractSkipsFailedItems(t *testing.T) {
	doc := &fakeDoc{
		pages:      3,
		renderErr:  map[int]error{2: errors.New("render failed")},
		objectsErr: map[int]error{3: errors.New("enumeration failed")},
		objects: map[int][]document.RasterObject{
			1: {{Name: "ok", Image: grayImage(80, 80)}},
		},
	}

	images := NewExtractor(Config{MaxWorkers: 1}).Extract(context.Background(), doc)

	// Pages 1 and 3 render, page 2 is skipped; page 1 keeps its embedded
	// image, page 3 loses only its embedded enumeration.
	require.Len(t, images, 3)
	assert.Equal(t, []int{1, 1, 3}, []int{images[0].Page, images[1].Page, images[2].Page})
}

func TestExtractEmptyDocument(t *testing.T) {
	images := NewExtractor(DefaultConfig()).Extract(context.Background(), &fakeDoc{pages: 0})
	assert.Empty(t, images)
}

func TestExtractProgress(t *testing.T) {
	var calls int
	var lastDone, lastTotal int
	cfg := Config{MaxWorkers: 1, OnPage: func(done, total int) {
		calls++
		lastDone, lastTotal = done, total
	}}

	NewExtractor(cfg).Extract(context.Background(), &fakeDoc{pages: 4})

	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, lastDone)
	assert.Equal(t, 4, lastTotal)
}

func TestFlattenSynthesizesOpaqueAlpha(t *testing.T) {
	// A gray source has no alpha channel; the flattened result must be
	// fully opaque everywhere.
	flat := flatten(grayImage(4, 4))
	for y := range 4 {
		for x := range 4 {
			_, _, _, a := flat.At(x, y).RGBA()
			assert.EqualValues(t, 0xffff, a)
		}
	}
}

func TestFlattenCompositesOverWhite(t *testing.T) {
	// Fully transparent pixels must come out white, not garbage.
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})

	flat := flatten(src)

	r, g, b, a := flat.At(1, 1).RGBA()
	assert.EqualValues(t, 0xffff, r)
	assert.EqualValues(t, 0xffff, g)
	assert.EqualValues(t, 0xffff, b)
	assert.EqualValues(t, 0xffff, a)

	r, _, _, _ = flat.At(0, 0).RGBA()
	assert.EqualValues(t, 0xffff, r)
}

func TestEncodedImagesAreValidPNG(t *testing.T) {
	doc := &fakeDoc{pages: 1}
	images := NewExtractor(Config{MaxWorkers: 1}).Extract(context.Background(), doc)

	require.Len(t, images, 1)
	decoded, err := png.Decode(bytes.NewReader(images[0].PNG))
	require.NoError(t, err)
	assert.Equal(t, images[0].Width, decoded.Bounds().Dx())
	assert.Equal(t, images[0].Height, decoded.Bounds().Dy())
}
