// Package dispatch decides how a picked sticker reaches the conversation
// and drives fetching and transcoding for that decision.
package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/graynk/stickerbot/fetcher"
	"github.com/graynk/stickerbot/media"
	"github.com/graynk/stickerbot/tools"
)

const DefaultTimeout = 60 * time.Second

type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) (*fetcher.Response, error)
	Objects() *fetcher.ObjectStore
}

type OverlayResolver interface {
	Resolve(ctx context.Context, templateURL, text string) (string, error)
}

type Dispatcher struct {
	host     Host
	fetcher  Fetcher
	overlays OverlayResolver
	recorder Recorder
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.SugaredLogger
}

type Option func(*Dispatcher)

func WithRecorder(recorder Recorder) Option {
	return func(d *Dispatcher) {
		d.recorder = recorder
	}
}

// WithTimeout bounds deliveries whose context has no deadline. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

func New(host Host, f Fetcher, overlays OverlayResolver, logger *zap.SugaredLogger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		host:     host,
		fetcher:  f,
		overlays: overlays,
		timeout:  DefaultTimeout,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver sends req.Sticker into the conversation. Either exactly one Outcome is
// returned, or an error is returned and nothing was sent.
func (d *Dispatcher) Deliver(ctx context.Context, req Request) (Outcome, error) {
	if req.Sticker == nil {
		return nil, errors.Wrap(tools.NoFileErr, "no sticker in request")
	}
	if _, ok := ctx.Deadline(); !ok && d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	draft := d.host.GetDraft(req.ConversationID, DraftSlot)
	options := SendOptions{Reply: d.host.GetPendingReply(ctx, req.ConversationID)}

	var (
		outcome Outcome
		err     error
	)
	switch {
	case (req.Modifiers.Ctrl || !req.SendAsLink) && !req.Modifiers.Shift:
		outcome, err = d.deliverFile(ctx, req, draft, options)
	case req.Modifiers.Shift:
		outcome, err = d.deliverAppended(ctx, req, draft, options)
	default:
		outcome, err = d.deliverLink(ctx, req, draft, options)
	}
	if err != nil {
		d.logger.Warnw("sticker delivery failed",
			"conversation", req.ConversationID,
			"sticker", req.Sticker.ID,
			"error", err)
		return nil, err
	}

	d.logger.Infow("sticker delivered",
		"conversation", req.ConversationID,
		"sticker", req.Sticker.ID,
		"mode", outcome.Mode())
	if d.recorder != nil {
		d.recorder.Record(req.ConversationID, outcome.Mode(), req.Sticker.Animated)
	}
	return outcome, nil
}

func (d *Dispatcher) deliverFile(ctx context.Context, req Request, draft string, options SendOptions) (Outcome, error) {
	file, err := d.produceFile(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.Modifiers.Ctrl {
		if err := d.host.PromptToUpload(ctx, []*media.File{file}, req.ConversationID, DraftSlot); err != nil {
			return nil, errors.Wrap(err, "staging upload")
		}
		return UploadPackage{File: file, Prompted: true}, nil
	}

	err = d.host.UploadFiles(ctx, ImmediateUpload{
		ConversationID: req.ConversationID,
		DraftSlot:      DraftSlot,
		HasSpoiler:     false,
		SendOptions:    options,
		ParsedContent:  Message{Content: draft},
		Uploads:        []UploadEntry{{File: file, Platform: PlatformWeb}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "uploading")
	}
	return UploadPackage{File: file}, nil
}

func ready(t Transcoder) error {
	if t == nil {
		return errors.WithStack(tools.EngineMissingErr)
	}
	if !t.IsLoaded() {
		return errors.WithStack(tools.EngineNotReadyErr)
	}
	return nil
}

func (d *Dispatcher) produceFile(ctx context.Context, req Request) (*media.File, error) {
	sticker := req.Sticker
	switch {
	case sticker.Animated:
		if err := ready(req.Transcoder); err != nil {
			return nil, err
		}
		source, err := d.fetcher.Fetch(ctx, sticker.Image, nil)
		if err != nil {
			return nil, err
		}
		return req.Transcoder.ToAnimatedRaster(ctx, req.ConversationID, sticker.Image, source.Body)

	case sticker.HasOverlay():
		if err := ready(req.Transcoder); err != nil {
			return nil, err
		}
		sticker.OverlayText = req.OverlayText
		if sticker.OverlayText != "" {
			resolved, err := d.overlays.Resolve(ctx, sticker.OverlayTemplateURL, sticker.OverlayText)
			if err != nil {
				return nil, err
			}
			sticker.OverlayTemplateURL = resolved
		}
		if ref := sticker.OverlayTemplateURL; fetcher.IsObjectRef(ref) {
			defer d.fetcher.Objects().Revoke(ref)
		}

		base, err := d.fetcher.Fetch(ctx, sticker.Image, nil)
		if err != nil {
			return nil, err
		}
		overlay, err := d.fetcher.Fetch(ctx, sticker.OverlayTemplateURL, nil)
		if err != nil {
			return nil, err
		}
		ext := media.Extension(media.LastPathSegment(sticker.Image, "image.png"))
		return req.Transcoder.Composite(ctx, req.ConversationID, base.Body, overlay.Body, ext)

	default:
		return d.rasterize(ctx, sticker)
	}
}

func (d *Dispatcher) rasterize(ctx context.Context, sticker *media.Sticker) (*media.File, error) {
	source := PlatformVariant(sticker.Image)
	resp, err := d.fetcher.Fetch(ctx, cacheBusted(source, d.now()), nil)
	if err != nil {
		return nil, err
	}

	name := sticker.Filename
	if name == "" {
		name = media.LastPathSegment(source, "image.png")
	}
	mimeType := media.MimeTypeForFilename(name)
	data, err := repackage(resp.Body, mimeType)
	if err != nil {
		return nil, errors.Wrapf(err, "repackaging %s", name)
	}
	return &media.File{Name: name, MimeType: mimeType, Data: data}, nil
}

// appendURL separates draft and url with a space unless the draft already ends in one or a newline.
func appendURL(draft, url string) string {
	if !strings.HasSuffix(draft, " ") && !strings.HasSuffix(draft, "\n") {
		draft += " "
	}
	return draft + url
}

func (d *Dispatcher) deliverAppended(ctx context.Context, req Request, draft string, options SendOptions) (Outcome, error) {
	text := appendURL(draft, req.Sticker.Image)

	if req.Modifiers.Ctrl {
		if inserter, ok := d.host.(TextInserter); ok && inserter.InsertText(ctx, req.ConversationID, text) {
			return LinkInsertion{Text: text}, nil
		}
	}

	if err := d.host.SendMessage(ctx, req.ConversationID, Message{Content: text}, options); err != nil {
		return nil, errors.Wrap(err, "sending message")
	}
	return DirectSend{Text: text}, nil
}

func (d *Dispatcher) deliverLink(ctx context.Context, req Request, draft string, options SendOptions) (Outcome, error) {
	text := strings.TrimSpace(draft + " " + req.Sticker.Image)
	if err := d.host.SendMessage(ctx, req.ConversationID, Message{Content: text}, options); err != nil {
		return nil, errors.Wrap(err, "sending message")
	}
	return DirectSend{Text: text}, nil
}
