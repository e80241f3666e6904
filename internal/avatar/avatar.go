// AngelaMos | 2026
// avatar.go

// Package avatar normalises uploaded profile pictures and stores them.
package avatar

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/carterperez-dev/rti-cashflowops/internal/core"
)

const (
	MaxUploadSize = 5 << 20
	Size          = 256
	ContentType   = "image/png"
)

var (
	ErrTooLarge    = fmt.Errorf("avatar exceeds %d bytes: %w", MaxUploadSize, core.ErrInvalidInput)
	ErrUnsupported = fmt.Errorf("unsupported image format: %w", core.ErrInvalidInput)
)

// Process decodes r, crops the largest centred square and scales it to
// Size x Size. The result is PNG encoded.
func Process(r io.Reader) ([]byte, error) {
	limited := io.LimitReader(r, MaxUploadSize+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read avatar: %w", err)
	}
	if len(raw) > MaxUploadSize {
		return nil, ErrTooLarge
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupported
		}
		return nil, fmt.Errorf("decode avatar: %w", core.ErrInvalidInput)
	}

	dst := image.NewRGBA(image.Rect(0, 0, Size, Size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, centerSquare(src.Bounds()), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode avatar: %w", err)
	}

	return buf.Bytes(), nil
}

func centerSquare(b image.Rectangle) image.Rectangle {
	side := min(b.Dx(), b.Dy())
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	return image.Rect(x0, y0, x0+side, y0+side)
}

func NewKey(accountID string) string {
	return fmt.Sprintf("avatars/%s/%s.png", accountID, uuid.NewString())
}
