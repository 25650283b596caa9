package qr

import (
	"github.com/skip2/go-qrcode"
)

// DefaultImageSize is the PNG edge length in pixels.
const DefaultImageSize = 256

// Renderer turns a reference URL into a scannable image.
type Renderer struct {
	Level qrcode.RecoveryLevel
}

func NewRenderer() *Renderer {
	return &Renderer{Level: qrcode.Medium}
}

// PNG encodes content as a size x size PNG.
func (r *Renderer) PNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultImageSize
	}
	return qrcode.Encode(content, r.Level, size)
}

// Terminal renders content with block characters for a terminal.
func (r *Renderer) Terminal(content string) (string, error) {
	q, err := qrcode.New(content, r.Level)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}
