package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
)

// Synthetic renders a JPEG test card: a gradient background with a bar that
// sweeps one column per capture, so consecutive frames are distinguishable
// on the collector side.
type Synthetic struct {
	Width   int
	Height  int
	Quality int

	mu    sync.Mutex
	frame int
}

// NewSynthetic creates a test-card camera.
func NewSynthetic(width, height, quality int) *Synthetic {
	return &Synthetic{Width: width, Height: height, Quality: quality}
}

// Capture encodes the next test card.
func (s *Synthetic) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, Failure("cancelled", err)
	}
	if s.Width <= 0 || s.Height <= 0 {
		return nil, ErrNotReady
	}

	s.mu.Lock()
	n := s.frame
	s.frame++
	s.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	bar := n % s.Width
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			c := color.RGBA{
				R: uint8(x * 255 / s.Width),
				G: uint8(y * 255 / s.Height),
				B: 96,
				A: 255,
			}
			if x >= bar && x < bar+4 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality()}); err != nil {
		return nil, Failure("jpeg encode", err)
	}
	return buf.Bytes(), nil
}

// Frames returns how many test cards have been rendered.
func (s *Synthetic) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

func (s *Synthetic) quality() int {
	if s.Quality < 1 || s.Quality > 100 {
		return jpeg.DefaultQuality
	}
	return s.Quality
}
