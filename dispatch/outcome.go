package dispatch

import (
	"context"

	"github.com/graynk/stickerbot/media"
	"github.com/graynk/stickerbot/transcoder"
)

type Mode string

const (
	ModeUpload Mode = "upload"
	ModePrompt Mode = "prompt"
	ModeInsert Mode = "insert"
	ModeSend   Mode = "send"
)

// Outcome is one of UploadPackage, LinkInsertion or DirectSend.
type Outcome interface {
	Mode() Mode
	isOutcome()
}

type UploadPackage struct {
	File     *media.File
	Prompted bool
}

type LinkInsertion struct {
	Text string
}

type DirectSend struct {
	Text string
}

func (u UploadPackage) Mode() Mode {
	if u.Prompted {
		return ModePrompt
	}
	return ModeUpload
}

func (LinkInsertion) Mode() Mode { return ModeInsert }
func (DirectSend) Mode() Mode    { return ModeSend }

func (UploadPackage) isOutcome() {}
func (LinkInsertion) isOutcome() {}
func (DirectSend) isOutcome()    {}

type Modifiers struct {
	Ctrl  bool
	Shift bool
}

// Request is a single user action. Transcoder may be left nil when there is none;
// animated and overlay stickers then fail with EngineMissingErr.
type Request struct {
	ConversationID string
	Sticker        *media.Sticker
	Modifiers      Modifiers
	SendAsLink     bool
	Transcoder     Transcoder
	OverlayText    string
}

// Transcoder is the part of *transcoder.Transcoder the dispatcher drives.
type Transcoder interface {
	IsLoaded() bool
	ToAnimatedRaster(ctx context.Context, key, sourceURL string, src []byte) (*media.File, error)
	Composite(ctx context.Context, key string, base, overlay []byte, ext string) (*media.File, error)
}

var _ Transcoder = (*transcoder.Transcoder)(nil)
