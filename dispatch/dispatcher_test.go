package dispatch

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/graynk/stickerbot/fetcher"
	"github.com/graynk/stickerbot/media"
	"github.com/graynk/stickerbot/overlay"
	"github.com/graynk/stickerbot/tools"
)

type sentMessage struct {
	conversationID string
	message        Message
	options        SendOptions
}

type fakeHost struct {
	mu       sync.Mutex
	draft    string
	reply    *Reply
	uploads  []ImmediateUpload
	prompted [][]*media.File
	sent     []sentMessage
}

func (h *fakeHost) GetDraft(conversationID string, slot int) string {
	return h.draft
}

func (h *fakeHost) GetPendingReply(ctx context.Context, conversationID string) *Reply {
	return h.reply
}

func (h *fakeHost) UploadFiles(ctx context.Context, upload ImmediateUpload) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.uploads = append(h.uploads, upload)
	return nil
}

func (h *fakeHost) PromptToUpload(ctx context.Context, files []*media.File, conversationID string, slot int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prompted = append(h.prompted, files)
	return nil
}

func (h *fakeHost) SendMessage(ctx context.Context, conversationID string, message Message, options SendOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, sentMessage{conversationID, message, options})
	return nil
}

func (h *fakeHost) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.uploads) + len(h.prompted) + len(h.sent)
}

type insertingHost struct {
	fakeHost
	inserted []string
}

func (h *insertingHost) InsertText(ctx context.Context, conversationID, text string) bool {
	h.inserted = append(h.inserted, text)
	return true
}

type fakeTranscoder struct {
	loaded     bool
	animated   atomic.Int32
	composites atomic.Int32
	base       []byte
	overlay    []byte
	ext        string
}

func (t *fakeTranscoder) IsLoaded() bool {
	return t.loaded
}

func (t *fakeTranscoder) ToAnimatedRaster(ctx context.Context, key, sourceURL string, src []byte) (*media.File, error) {
	t.animated.Add(1)
	return &media.File{Name: "output.gif", MimeType: media.GIF, Data: []byte("gif")}, nil
}

func (t *fakeTranscoder) Composite(ctx context.Context, key string, base, overlay []byte, ext string) (*media.File, error) {
	t.composites.Add(1)
	t.base, t.overlay, t.ext = base, overlay, ext
	return &media.File{Name: "output." + ext, MimeType: media.MimeTypeForExtension(ext), Data: []byte("composited")}, nil
}

func (t *fakeTranscoder) calls() int32 {
	return t.animated.Load() + t.composites.Load()
}

type recorder struct {
	modes []Mode
}

func (r *recorder) Record(conversationID string, mode Mode, animated bool) {
	r.modes = append(r.modes, mode)
}

// stickerServer serves a png of the given size on any path and counts hits.
type stickerServer struct {
	*httptest.Server
	hits  atomic.Int32
	paths []string
	mu    sync.Mutex
}

func encodePNG(t *testing.T, width, height int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, 0, color.NRGBA{R: 255, A: 128})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newStickerServer(t *testing.T, body []byte) *stickerServer {
	s := &stickerServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.mu.Lock()
		s.paths = append(s.paths, r.URL.RequestURI())
		s.mu.Unlock()
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

func newDispatcher(t *testing.T, host Host, opts ...Option) (*Dispatcher, *fetcher.Fetcher) {
	logger := zaptest.NewLogger(t).Sugar()
	f := fetcher.New(fetcher.DefaultConfig(), logger)
	resolver := overlay.NewResolver("", f, nil, logger)
	return New(host, f, resolver, logger, opts...), f
}

func TestDeliver_LinkByDefault(t *testing.T) {
	host := &fakeHost{draft: "look at this"}
	rec := &recorder{}
	d, _ := newDispatcher(t, host, WithRecorder(rec))
	tr := &fakeTranscoder{loaded: true}

	sticker := &media.Sticker{ID: "1", Image: "https://stickershop.line-scdn.net/stickershop/v1/sticker/456/android/sticker.png"}
	outcome, err := d.Deliver(context.Background(), Request{
		ConversationID: "42",
		Sticker:        sticker,
		SendAsLink:     true,
		Transcoder:     tr,
	})
	require.NoError(t, err)
	assert.Equal(t, DirectSend{Text: "look at this " + sticker.Image}, outcome)
	require.Len(t, host.sent, 1)
	assert.Equal(t, "look at this "+sticker.Image, host.sent[0].message.Content)
	assert.Equal(t, []Mode{ModeSend}, rec.modes)
	assert.Equal(t, int32(0), tr.calls())
}

func TestDeliver_LinkTrimsEmptyDraft(t *testing.T) {
	host := &fakeHost{reply: &Reply{ConversationID: "42", MessageID: "7"}}
	d, _ := newDispatcher(t, host)

	outcome, err := d.Deliver(context.Background(), Request{
		ConversationID: "42",
		Sticker:        &media.Sticker{ID: "1", Image: "https://example.com/sticker.png"},
		SendAsLink:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, DirectSend{Text: "https://example.com/sticker.png"}, outcome)
	assert.Equal(t, "7", host.sent[0].options.Reply.MessageID)
}

func TestDeliver_ShiftAppendsOnce(t *testing.T) {
	drafts := map[string]string{
		"hello":   "hello https://example.com/a.png",
		"hello ":  "hello https://example.com/a.png",
		"hello\n": "hello\nhttps://example.com/a.png",
		"":        " https://example.com/a.png",
	}
	for draft, expected := range drafts {
		host := &fakeHost{draft: draft}
		d, _ := newDispatcher(t, host)
		tr := &fakeTranscoder{loaded: true}
		for _, animated := range []bool{false, true} {
			outcome, err := d.Deliver(context.Background(), Request{
				ConversationID: "42",
				Sticker:        &media.Sticker{ID: "1", Image: "https://example.com/a.png", Animated: animated},
				Modifiers:      Modifiers{Shift: true},
				Transcoder:     tr,
			})
			require.NoError(t, err)
			assert.Equal(t, DirectSend{Text: expected}, outcome)
		}
		assert.Equal(t, int32(0), tr.calls())
		assert.Empty(t, host.uploads)
	}
}

func TestDeliver_CtrlShiftInsertsText(t *testing.T) {
	host := &insertingHost{fakeHost: fakeHost{draft: "hey"}}
	d, _ := newDispatcher(t, host)

	outcome, err := d.Deliver(context.Background(), Request{
		ConversationID: "42",
		Sticker:        &media.Sticker{ID: "1", Image: "https://example.com/a.png"},
		Modifiers:      Modifiers{Ctrl: true, Shift: true},
	})
	require.NoError(t, err)
	assert.Equal(t, LinkInsertion{Text: "hey https://example.com/a.png"}, outcome)
	assert.Equal(t, []string{"hey https://example.com/a.png"}, host.inserted)
	assert.Empty(t, host.sent)
}

func TestDeliver_CtrlShiftWithoutInserterSends(t *testing.T) {
	host := &fakeHost{draft: "hey"}
	d, _ := newDispatcher(t, host)

	outcome, err := d.Deliver(context.Background(), Request{
		ConversationID: "42",
		Sticker:        &media.Sticker{ID: "1", Image: "https://example.com/a.png"},
		Modifiers:      Modifiers{Ctrl: true, Shift: true},
	})
	require.NoError(t, err)
	assert.Equal(t, DirectSend{Text: "hey https://example.com/a.png"}, outcome)
}

func TestDeliver_AnimatedNotLoaded(t *testing.T) {
	server := newStickerServer(t, []byte("apng"))
	host := &fakeHost{}
	d, _ := newDispatcher(t, host)

	for _, mods := range []Modifiers{{}, {Ctrl: true}} {
		_, err := d.Deliver(context.Background(), Request{
			ConversationID: "42",
			Sticker:        &media.Sticker{ID: "1", Image: server.URL + "/sticker_animation@2x.png", Animated: true},
			Modifiers:      mods,
			Transcoder:     &fakeTranscoder{loaded: false},
		})
		assert.ErrorIs(t, err, tools.EngineNotReadyErr)
	}
	assert.Equal(t, int32(0), server.hits.Load())
	assert.Equal(t, 0, host.calls())
}

func TestDeliver_AnimatedWithoutTranscoder(t *testing.T) {
	server := newStickerServer(t, []byte("apng"))
	host := &fakeHost{}
	d, _ := newDispatcher(t, host)

	_, err := d.Deliver(context.Background(), Request{
		ConversationID: "42",
		Sticker:        &media.Sticker{ID: "1", Image: server.URL + "/a.png", Animated: true},
	})
	assert.ErrorIs(t, err, tools.EngineMissingErr)

	_, err = d.Deliver(context.Background(), Request{
		ConversationID: "42",
		Sticker:        &media.Sticker{ID: "1", Image: server.URL + "/a.png", OverlayTemplateURL: server.URL + "/o.png"},
	})
	assert.ErrorIs(t, err, tools.EngineMissingErr)
	assert.Equal(t, int32(0), server.hits.Load())
	assert.Equal(t, 0, host.calls())
}

func TestDeliver_AnimatedUpload(t *testing.T) {
	server := newStickerServer(t, []byte("apng"))
	host := &fakeHost{draft: "caption", reply: &Reply{MessageID: "9"}}
	d, _ := newDispatcher(t, host)
	tr := &fakeTranscoder{loaded: true}

	outcome, err := d.Deliver(context.Background(), Request{
		ConversationID: "42",
		Sticker:        &media.Sticker{ID: "1", Image: server.URL + "/sticker_animation@2x.png", Animated: true},
		Transcoder:     tr,
	})
	require.NoError(t, err)
	pkg, ok := outcome.(UploadPackage)
	require.True(t, ok)
	assert.False(t, pkg.Prompted)
	assert.Equal(t, media.GIF, pkg.File.MimeType)

	require.Len(t, host.uploads, 1)
	upload := host.uploads[0]
	assert.Equal(t, "42", upload.ConversationID)
	assert.Equal(t, DraftSlot, upload.DraftSlot)
	assert.False(t, upload.HasSpoiler)
	assert.Equal(t, "caption", upload.ParsedContent.Content)
	assert.Equal(t, "9", upload.SendOptions.Reply.MessageID)
	require.Len(t, upload.Uploads, 1)
	assert.Equal(t, PlatformWeb, upload.Uploads[0].Platform)
	assert.Same(t, pkg.File, upload.Uploads[0].File)
}

func TestDeliver_CtrlPromptsUpload(t *testing.T) {
	server := newStickerServer(t, []byte("apng"))
	host := &fakeHost{}
	d, _ := newDispatcher(t, host)

	outcome, err := d.Deliver(context.Background(), Request{
		ConversationID: "42",
		Sticker:        &media.Sticker{ID: "1", Image: server.URL + "/a.png", Animated: true},
		Modifiers:      Modifiers{Ctrl: true},
		SendAsLink:     true,
		Transcoder:     &fakeTranscoder{loaded: true},
	})
	require.NoError(t, err)
	assert.Equal(t, ModePrompt, outcome.Mode())
	require.Len(t, host.prompted, 1)
	assert.Empty(t, host.uploads)
	assert.Empty(t, host.sent)
}

func TestDeliver_OverlayComposite(t *testing.T) {
	var (
		mu      sync.Mutex
		renders []string
	)
	store := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		renders = append(renders, r.URL.Query().Get("text"))
		mu.Unlock()
		w.Write([]byte("rendered-overlay"))
	}))
	defer store.Close()
	base := newStickerServer(t, []byte("base-image"))

	logger := zaptest.NewLogger(t).Sugar()
	f := fetcher.New(fetcher.DefaultConfig(), logger)
	host := &fakeHost{}
	d := New(host, f, overlay.NewResolver(store.URL, f, nil, logger), logger)
	tr := &fakeTranscoder{loaded: true}

	sticker := &media.Sticker{
		ID:                 "456",
		Image:              base.URL + "/stickershop/v1/sticker/456/iPhone/sticker@2x.png",
		OverlayTemplateURL: "https://stickershop.line-scdn.net/stickershop/v1/product/123/sticker/456/iPhone/overlay/plus/default/sticker@2x.png",
	}
	_, err := d.Deliver(context.Background(), Request{
		ConversationID: "42",
		Sticker:        sticker,
		Transcoder:     tr,
		OverlayText:    "yo",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"yo"}, renders)
	assert.Equal(t, "yo", sticker.OverlayText)
	assert.True(t, fetcher.IsObjectRef(sticker.OverlayTemplateURL))
	assert.Equal(t, 0, f.Objects().Len())
	assert.Equal(t, []byte("base-image"), tr.base)
	assert.Equal(t, []byte("rendered-overlay"), tr.overlay)
	assert.Equal(t, "png", tr.ext)
	require.Len(t, host.uploads, 1)
}

func TestDeliver_OverlayWithoutTextUsesTemplate(t *testing.T) {
	server := newStickerServer(t, []byte("image"))
	host := &fakeHost{}
	d, _ := newDispatcher(t, host)
	tr := &fakeTranscoder{loaded: true}

	sticker := &media.Sticker{ID: "1", Image: server.URL + "/base.png", OverlayTemplateURL: server.URL + "/overlay.png"}
	_, err := d.Deliver(context.Background(), Request{ConversationID: "42", Sticker: sticker, Transcoder: tr})
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/overlay.png", sticker.OverlayTemplateURL)
	assert.Equal(t, int32(1), tr.composites.Load())
	assert.Equal(t, int32(2), server.hits.Load())
}

func TestDeliver_PlainImageKeepsDimensions(t *testing.T) {
	source := encodePNG(t, 37, 21)
	server := newStickerServer(t, source)
	host := &fakeHost{}
	clock := func() time.Time { return time.UnixMilli(1700000000000) }
	d, _ := newDispatcher(t, host, WithClock(clock))

	outcome, err := d.Deliver(context.Background(), Request{
		ConversationID: "42",
		Sticker:        &media.Sticker{ID: "1", Image: server.URL + "/stickershop/v1/sticker/456/android/sticker.png"},
	})
	require.NoError(t, err)

	pkg := outcome.(UploadPackage)
	assert.Equal(t, "sticker@2x.png", pkg.File.Name)
	assert.Equal(t, media.PNG, pkg.File.MimeType)
	assert.Equal(t, []string{"/stickershop/v1/sticker/456/iPhone/sticker@2x.png?t=1700000000000"}, server.paths)

	decoded, err := png.Decode(bytes.NewReader(pkg.File.Data))
	require.NoError(t, err)
	assert.Equal(t, 37, decoded.Bounds().Dx())
	assert.Equal(t, 21, decoded.Bounds().Dy())
}

func TestDeliver_PlainImageHonoursFilename(t *testing.T) {
	server := newStickerServer(t, encodePNG(t, 8, 8))
	host := &fakeHost{}
	d, _ := newDispatcher(t, host)

	outcome, err := d.Deliver(context.Background(), Request{
		ConversationID: "42",
		Sticker:        &media.Sticker{ID: "1", Image: server.URL + "/emote", Filename: "emote.jpg"},
	})
	require.NoError(t, err)
	pkg := outcome.(UploadPackage)
	assert.Equal(t, "emote.jpg", pkg.File.Name)
	assert.Equal(t, media.JPEG, pkg.File.MimeType)
	_, format, err := image.Decode(bytes.NewReader(pkg.File.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestDeliver_PlainImageUndecodable(t *testing.T) {
	server := newStickerServer(t, []byte("definitely not an image"))
	host := &fakeHost{}
	d, _ := newDispatcher(t, host)

	_, err := d.Deliver(context.Background(), Request{
		ConversationID: "42",
		Sticker:        &media.Sticker{ID: "1", Image: server.URL + "/sticker.png"},
	})
	assert.ErrorIs(t, err, tools.CanvasUnavailableErr)
	assert.Equal(t, 0, host.calls())
}

func TestDeliver_FetchFailureSendsNothing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()
	host := &fakeHost{}
	rec := &recorder{}
	d, _ := newDispatcher(t, host, WithRecorder(rec))

	_, err := d.Deliver(context.Background(), Request{
		ConversationID: "42",
		Sticker:        &media.Sticker{ID: "1", Image: server.URL + "/a.png", Animated: true},
		Transcoder:     &fakeTranscoder{loaded: true},
	})
	assert.ErrorIs(t, err, tools.FetchErr)
	assert.Equal(t, 0, host.calls())
	assert.Empty(t, rec.modes)
}

func TestRepackage_SVGPassthrough(t *testing.T) {
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="1" height="1"/>`)
	data, err := repackage(svg, media.SVG)
	require.NoError(t, err)
	assert.Equal(t, svg, data)

	_, err = repackage(nil, media.SVG)
	assert.ErrorIs(t, err, tools.EmptyBlobErr)
}

func TestRepackage_GIFKeepsTransparency(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{R: 255, A: 255}), image.Point{}, draw.Src)
	img.SetNRGBA(2, 2, color.NRGBA{})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	data, err := repackage(buf.Bytes(), media.GIF)
	require.NoError(t, err)
	decoded, err := gif.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	_, _, _, a := decoded.At(2, 2).RGBA()
	assert.Zero(t, a)
	_, _, _, a = decoded.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), a)
}

func TestPlatformVariant(t *testing.T) {
	assert.Equal(t,
		"https://stickershop.line-scdn.net/stickershop/v1/sticker/456/iPhone/sticker@2x.png",
		PlatformVariant("https://stickershop.line-scdn.net/stickershop/v1/sticker/456/android/sticker.png"))
	assert.True(t, strings.HasSuffix(PlatformVariant("https://example.com/emote.webp"), "emote.webp"))
}
