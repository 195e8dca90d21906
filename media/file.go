package media

const (
	PNG  = "image/png"
	JPEG = "image/jpeg"
	GIF  = "image/gif"
	WEBP = "image/webp"
	SVG  = "image/svg+xml"
)

// File is an in-memory file ready to be uploaded.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

func (f *File) Size() int {
	return len(f.Data)
}

// MimeTypeForFilename infers the mimetype of a plain sticker image from its filename.
func MimeTypeForFilename(name string) string {
	switch Extension(name) {
	case "jpg", "jpeg":
		return JPEG
	case "gif":
		return GIF
	case "webp":
		return WEBP
	case "svg":
		return SVG
	}
	return PNG
}

// NormalizeRasterExtension maps an output extension onto one the compositor can write.
// Anything unknown becomes png.
func NormalizeRasterExtension(ext string) string {
	switch ext {
	case "png", "jpg", "jpeg", "webp":
		return ext
	}
	return "png"
}

// MimeTypeForExtension is the mimetype of a composited file with the given output extension.
func MimeTypeForExtension(ext string) string {
	switch NormalizeRasterExtension(ext) {
	case "jpg", "jpeg":
		return JPEG
	case "webp":
		return WEBP
	}
	return PNG
}
