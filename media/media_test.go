package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMimeTypeForFilename(t *testing.T) {
	cases := map[string]string{
		"sticker.jpg":     JPEG,
		"sticker.JPEG":    JPEG,
		"sticker.gif":     GIF,
		"sticker.webp":    WEBP,
		"sticker.svg":     SVG,
		"sticker@2x.png":  PNG,
		"sticker":         PNG,
		"sticker.unknown": PNG,
	}
	for name, expected := range cases {
		assert.Equal(t, expected, MimeTypeForFilename(name), name)
	}
}

func TestMimeTypeForExtension(t *testing.T) {
	assert.Equal(t, JPEG, MimeTypeForExtension("jpg"))
	assert.Equal(t, JPEG, MimeTypeForExtension("jpeg"))
	assert.Equal(t, WEBP, MimeTypeForExtension("webp"))
	assert.Equal(t, PNG, MimeTypeForExtension("png"))
	assert.Equal(t, PNG, MimeTypeForExtension("unknown"))
	assert.Equal(t, "png", NormalizeRasterExtension("gif"))
}

func TestLastPathSegment(t *testing.T) {
	assert.Equal(t, "sticker.png", LastPathSegment("https://stickershop.line-scdn.net/stickershop/v1/sticker/456/android/sticker.png?v=1", "image.png"))
	assert.Equal(t, "image.png", LastPathSegment("https://example.com/", "image.png"))
	assert.Equal(t, "image.png", LastPathSegment("://bad", "image.png"))
}
