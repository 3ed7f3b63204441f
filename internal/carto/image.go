package carto

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fogleman/gg"
)

// ErrUnsupportedFormat is returned when saving to a format other than png or jpeg.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Image is an RGBA raster that Render draws into.
type Image struct {
	rgba *image.RGBA
}

// NewImage allocates a transparent w by h image.
func NewImage(w, h int) *Image {
	return &Image{rgba: image.NewRGBA(image.Rect(0, 0, w, h))}
}

func (im *Image) Width() int        { return im.rgba.Bounds().Dx() }
func (im *Image) Height() int       { return im.rgba.Bounds().Dy() }
func (im *Image) RGBA() *image.RGBA { return im.rgba }

// View returns the w by h region starting at (x, y), clipped to the image.
func (im *Image) View(x, y, w, h int) *View {
	r := image.Rect(x, y, x+w, y+h).Intersect(im.rgba.Bounds())
	return &View{img: im.rgba.SubImage(r)}
}

// View is a rectangular region of an Image.
type View struct {
	img image.Image
}

func (v *View) Width() int  { return v.img.Bounds().Dx() }
func (v *View) Height() int { return v.img.Bounds().Dy() }

// Image returns the region as a standalone image.
func (v *View) Image() image.Image { return v.img }

// Save writes the view to path. Formats are "png" and "jpeg"; "jpeg" takes an
// optional quality suffix such as "jpeg85".
func (v *View) Save(path, format string) error {
	if f := normalizeFormat(format); f == "png" {
		if err := gg.SavePNG(path, v.img); err != nil {
			return fmt.Errorf("save %s: %w", path, err)
		}
		return nil
	}
	if _, _, err := parseFormat(format); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	if err := v.Encode(f, format); err != nil {
		f.Close()
		return fmt.Errorf("save %s: %w", path, err)
	}
	return f.Close()
}

// Encode writes the view to w in the given format.
func (v *View) Encode(w io.Writer, format string) error {
	kind, quality, err := parseFormat(format)
	if err != nil {
		return err
	}
	if kind == "jpeg" {
		return jpeg.Encode(w, v.img, &jpeg.Options{Quality: quality})
	}
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	return enc.Encode(w, v.img)
}

func normalizeFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "jpg" || strings.HasPrefix(f, "jpeg") {
		return "jpeg"
	}
	if f == "png" || f == "png32" {
		return "png"
	}
	return f
}

func parseFormat(format string) (kind string, quality int, err error) {
	switch normalizeFormat(format) {
	case "png":
		return "png", 0, nil
	case "jpeg":
		quality = 85
		f := strings.ToLower(strings.TrimSpace(format))
		if q := strings.TrimPrefix(f, "jpeg"); q != f && q != "" {
			n, err := strconv.Atoi(q)
			if err != nil || n < 1 || n > 100 {
				return "", 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
			}
			quality = n
		}
		return "jpeg", quality, nil
	}
	return "", 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}
