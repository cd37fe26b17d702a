package blob

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultPreviewMaxEdge = 480
	DefaultPreviewQuality = 80
)

// Preview is the thumbnail shown in chat bubbles before the full image loads.
type Preview struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
}

// GeneratePreview decodes an image and re-encodes it as a JPEG whose longest
// edge is at most maxEdge. Transparent areas are flattened onto white.
func GeneratePreview(src io.Reader, maxEdge int, quality int) (*Preview, error) {
	if maxEdge <= 0 {
		maxEdge = DefaultPreviewMaxEdge
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultPreviewQuality
	}

	img, _, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("invalid image dimensions")
	}

	width, height := scaleDimensions(bounds.Dx(), bounds.Dy(), maxEdge)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)

	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding jpeg preview: %w", err)
	}

	return &Preview{
		Data:     buf.Bytes(),
		MimeType: "image/jpeg",
		Width:    width,
		Height:   height,
	}, nil
}

func scaleDimensions(width, height, maxEdge int) (int, int) {
	if width <= maxEdge && height <= maxEdge {
		return width, height
	}

	long, short := width, height
	if height > width {
		long, short = height, width
	}
	scaledShort := int(float64(short)*float64(maxEdge)/float64(long) + 0.5)
	if scaledShort < 1 {
		scaledShort = 1
	}

	if width >= height {
		return maxEdge, scaledShort
	}
	return scaledShort, maxEdge
}
