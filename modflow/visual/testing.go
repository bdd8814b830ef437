package visual

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
)

// Classifier which returns a fixed probability (or error). Counts invocations.
type StaticClassifier struct {
	Score float64
	Err   error

	calls atomic.Int64
}

var _ Classifier = (*StaticClassifier)(nil)

func (c *StaticClassifier) Classify(ctx context.Context, image []byte) (float64, error) {
	c.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.Score, c.Err
}

func (c *StaticClassifier) Calls() int {
	return int(c.calls.Load())
}

// Fetcher serving fixed bodies keyed by URL.
type StaticFetcher struct {
	mu     sync.Mutex
	Bodies map[string][]byte
}

var _ Fetcher = (*StaticFetcher)(nil)

func NewStaticFetcher() *StaticFetcher {
	return &StaticFetcher{Bodies: make(map[string][]byte)}
}

func (f *StaticFetcher) Set(url string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Bodies[url] = body
}

func (f *StaticFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.Bodies[url]
	if !ok {
		return nil, fmt.Errorf("attachment not found: %s", url)
	}
	return b, nil
}

// Small solid-color PNG, for exercising the decode path.
func SamplePNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
