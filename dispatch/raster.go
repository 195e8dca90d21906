package dispatch

import (
	"bytes"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"

	"github.com/graynk/stickerbot/media"
	"github.com/graynk/stickerbot/tools"
)

// PlatformVariant points a LINE sticker URL at the larger iPhone rendition.
func PlatformVariant(src string) string {
	src = strings.Replace(src, "android", "iPhone", 1)
	return strings.Replace(src, "sticker.png", "sticker@2x.png", 1)
}

func cacheBusted(rawURL string, now time.Time) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := u.Query()
	query.Set("t", strconv.FormatInt(now.UnixMilli(), 10))
	u.RawQuery = query.Encode()
	return u.String()
}

// repackage redraws data onto a fresh surface of its natural size and encodes it as mimeType.
// There is no webp encoder, so webp is only decoded to validate it, and svg is not a raster at all.
func repackage(data []byte, mimeType string) ([]byte, error) {
	if mimeType == media.SVG {
		if len(data) == 0 {
			return nil, errors.WithStack(tools.EmptyBlobErr)
		}
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(tools.CanvasUnavailableErr, err.Error())
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, errors.Wrap(tools.CanvasUnavailableErr, "image has no pixels")
	}
	if mimeType == media.WEBP {
		return data, nil
	}

	surface := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(surface, surface.Bounds(), img, bounds.Min, draw.Src)

	var buf bytes.Buffer
	switch mimeType {
	case media.JPEG:
		err = jpeg.Encode(&buf, surface, &jpeg.Options{Quality: 95})
	case media.GIF:
		err = gif.Encode(&buf, transparentPaletted(surface), nil)
	default:
		err = png.Encode(&buf, surface)
	}
	if err != nil {
		return nil, errors.Wrap(tools.EmptyBlobErr, err.Error())
	}
	if buf.Len() == 0 {
		return nil, errors.WithStack(tools.EmptyBlobErr)
	}
	return buf.Bytes(), nil
}

// transparentPaletted dithers src onto Plan9 with index 0 reserved for transparency,
// so fully transparent pixels stay transparent in the gif.
func transparentPaletted(src *image.RGBA) *image.Paletted {
	colors := make(color.Palette, 0, len(palette.Plan9))
	colors = append(colors, color.Transparent)
	colors = append(colors, palette.Plan9[:len(palette.Plan9)-1]...)

	bounds := src.Bounds()
	dst := image.NewPaletted(bounds, colors)
	draw.FloydSteinberg.Draw(dst, bounds, src, bounds.Min)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if src.RGBAAt(x, y).A == 0 {
				dst.SetColorIndex(x, y, 0)
			}
		}
	}
	return dst
}
