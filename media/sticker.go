package media

import (
	"net/url"
	"path"
	"strings"
)

// Sticker is a single sticker picked by the user. It lives for one delivery;
// the dispatcher fills in the resolved overlay before compositing.
type Sticker struct {
	ID                 string
	Image              string
	Animated           bool
	OverlayTemplateURL string
	OverlayText        string
	Filename           string
}

func (s *Sticker) HasOverlay() bool {
	return s.OverlayTemplateURL != ""
}

// LastPathSegment returns the last element of the URL path, or fallback if there is none.
func LastPathSegment(rawURL, fallback string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	segment := path.Base(u.Path)
	if segment == "." || segment == "/" || segment == "" {
		return fallback
	}
	return segment
}

// Extension returns the lowercased extension of name without the dot.
func Extension(name string) string {
	ext := path.Ext(name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
