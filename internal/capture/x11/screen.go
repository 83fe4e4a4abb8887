package x11

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/jezek/xgb/xproto"
)

// Capture grabs the root window contents and writes them to dir as a
// timestamped PNG, returning the file path.
func (b *Backend) Capture(ctx context.Context, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("preparing screenshot dir: %w", err)
	}

	geom, err := xproto.GetGeometry(b.conn, xproto.Drawable(b.root)).Reply()
	if err != nil {
		return "", fmt.Errorf("reading screen geometry: %w", err)
	}

	reply, err := xproto.GetImage(b.conn, xproto.ImageFormatZPixmap,
		xproto.Drawable(b.root), 0, 0, geom.Width, geom.Height, 0xffffffff).Reply()
	if err != nil {
		return "", fmt.Errorf("reading screen image: %w", err)
	}

	img := rgbaFromZPixmap(reply.Data, int(geom.Width), int(geom.Height))

	path := filepath.Join(dir, fmt.Sprintf("screen-%d.png", time.Now().UnixMilli()))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating screenshot file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("encoding screenshot: %w", err)
	}
	return path, nil
}

// rgbaFromZPixmap converts the BGRX byte order of a 24/32-bit ZPixmap to
// an RGBA image.
func rgbaFromZPixmap(data []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i+3 < len(data) && i/4 < width*height; i += 4 {
		j := i
		img.Pix[j+0] = data[i+2]
		img.Pix[j+1] = data[i+1]
		img.Pix[j+2] = data[i+0]
		img.Pix[j+3] = 0xff
	}
	return img
}
