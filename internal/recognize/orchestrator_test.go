package recognize

import (
	"context"
	"errors"
	"testing"

	"github.com/pagesift/pagesift/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine returns scripted text per image payload.
type fakeEngine struct {
	texts      map[string]string
	failOn     map[string]error
	acquireErr error
	releaseErr error

	acquired int
	released int
	language string
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Acquire(language string) (Session, error) {
	if e.acquireErr != nil {
		return nil, e.acquireErr
	}
	e.acquired++
	e.language = language
	return &fakeSession{engine: e}, nil
}

type fakeSession struct {
	engine *fakeEngine
}

func (s *fakeSession) Recognize(png []byte) (string, error) {
	if err := s.engine.failOn[string(png)]; err != nil {
		return "", err
	}
	return s.engine.texts[string(png)], nil
}

func (s *fakeSession) Release() error {
	s.engine.released++
	return s.engine.releaseErr
}

func batch(payloads ...string) []raster.Image {
	images := make([]raster.Image, len(payloads))
	for i, p := range payloads {
		images[i] = raster.Image{PNG: []byte(p), Kind: raster.KindPage, Page: i + 1}
	}
	return images
}

func TestRunJoinsBlocksInOrder(t *testing.T) {
	engine := &fakeEngine{texts: map[string]string{"a": "First block", "b": "Second block"}}

	got, err := NewOrchestrator(engine, "eng").Run(context.Background(), batch("a", "b"))

	require.NoError(t, err)
	assert.Equal(t, "First block\n\nSecond block", got)
	assert.Equal(t, "eng", engine.language)
}

func TestRunDiscardsEmptyBlocks(t *testing.T) {
	engine := &fakeEngine{texts: map[string]string{"a": "kept", "b": "   ", "c": ""}}

	got, err := NewOrchestrator(engine, "").Run(context.Background(), batch("a", "b", "c"))

	require.NoError(t, err)
	assert.Equal(t, "kept", got)
}

func TestRunAllEmptyIsNotAnError(t *testing.T) {
	engine := &fakeEngine{texts: map[string]string{}}

	got, err := NewOrchestrator(engine, "").Run(context.Background(), batch("a", "b"))

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRunSkipsFailedPasses(t *testing.T) {
	engine := &fakeEngine{
		texts:  map[string]string{"a": "before", "c": "after"},
		failOn: map[string]error{"b": errors.New("boom")},
	}

	got, err := NewOrchestrator(engine, "").Run(context.Background(), batch("a", "b", "c"))

	require.NoError(t, err)
	assert.Equal(t, "before\n\nafter", got)
}

func TestRunReleasesSessionPerPass(t *testing.T) {
	engine := &fakeEngine{
		texts:  map[string]string{"a": "x"},
		failOn: map[string]error{"b": errors.New("boom")},
	}

	_, err := NewOrchestrator(engine, "").Run(context.Background(), batch("a", "b", "c"))

	require.NoError(t, err)
	assert.Equal(t, 3, engine.acquired)
	assert.Equal(t, 3, engine.released, "session must be released on every exit path")
}

func TestRunReleaseFailureIsNotPropagated(t *testing.T) {
	engine := &fakeEngine{texts: map[string]string{"a": "still here"}, releaseErr: errors.New("close failed")}

	got, err := NewOrchestrator(engine, "").Run(context.Background(), batch("a"))

	require.NoError(t, err)
	assert.Equal(t, "still here", got)
}

func TestRunAcquireFailureAborts(t *testing.T) {
	engine := &fakeEngine{acquireErr: errors.New("no engine")}

	_, err := NewOrchestrator(engine, "").Run(context.Background(), batch("a"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngineUnavailable)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := &fakeEngine{texts: map[string]string{"a": "never"}}
	_, err := NewOrchestrator(engine, "").Run(ctx, batch("a"))

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, engine.acquired)
}

func TestTesseractLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"en", "eng"},
		{"en-US", "eng"},
		{"de", "deu"},
		{"pt-BR", "por"},
		{"zh", "chi_sim"},
		{"eng", "eng"},
		{"eng+fra", "eng+fra"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TesseractLanguage(tt.in), "input %q", tt.in)
	}
}
