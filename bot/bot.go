package bot

import (
	"sync"

	"go.uber.org/zap"
	tb "gopkg.in/telebot.v3"

	"github.com/graynk/stickerbot/dispatch"
	"github.com/graynk/stickerbot/media"
	"github.com/graynk/stickerbot/stats"
	"github.com/graynk/stickerbot/tools"
	"github.com/graynk/stickerbot/transcoder"
)

// Sender is the part of *tb.Bot the host sends through.
type Sender interface {
	Send(to tb.Recipient, what interface{}, opts ...interface{}) (*tb.Message, error)
}

type Settings struct {
	AdminID    int64
	SendAsLink bool
}

type stickerBot struct {
	settings   Settings
	sender     Sender
	rl         *tools.RateLimiter
	logger     *zap.SugaredLogger
	graceWg    *sync.WaitGroup
	dispatcher *dispatch.Dispatcher
	transcoder *transcoder.Transcoder
	db         *stats.DeliveryDB

	mu      sync.Mutex
	drafts  map[string]string
	staged  map[string][]*media.File
}

// NewStickerBot wires a Telegram host around a dispatcher. t and db may be nil.
func NewStickerBot(
	sender Sender,
	settings Settings,
	f dispatch.Fetcher,
	overlays dispatch.OverlayResolver,
	t *transcoder.Transcoder,
	db *stats.DeliveryDB,
	logger *zap.SugaredLogger,
	opts ...dispatch.Option,
) *stickerBot {
	s := &stickerBot{
		settings:   settings,
		sender:     sender,
		rl:         tools.NewRateLimiter(tools.AllowedOverTime, tools.TimePeriod),
		logger:     logger,
		graceWg:    &sync.WaitGroup{},
		transcoder: t,
		db:         db,
		drafts:     make(map[string]string),
		staged:     make(map[string][]*media.File),
	}
	if db != nil {
		opts = append(opts, dispatch.WithRecorder(db))
	}
	s.dispatcher = dispatch.New(s, f, overlays, logger, opts...)
	return s
}

func (s *stickerBot) Register(b *tb.Bot) {
	b.Use(s.ShutdownMiddleware, s.ErrMiddleware)

	b.Handle("/start", s.HandleStart)
	b.Handle("/send", s.HandleSend, s.RateLimitMiddleware)
	b.Handle("/draft", s.HandleDraft)
	b.Handle("/confirm", s.HandleConfirm)
	b.Handle("/cancel", s.HandleCancel)
	b.Handle("/daily", func(c tb.Context) error {
		return s.HandleStatRequest(c, stats.Daily)
	})
	b.Handle("/weekly", func(c tb.Context) error {
		return s.HandleStatRequest(c, stats.Weekly)
	})
	b.Handle("/monthly", func(c tb.Context) error {
		return s.HandleStatRequest(c, stats.Monthly)
	})
	b.Handle("/queue", s.HandleQueueStats)
	b.Handle("/maintenance", s.HandleMaintenance)
}

func (s *stickerBot) Shutdown() {
	s.graceWg.Wait()
	if s.transcoder != nil {
		if err := s.transcoder.Close(); err != nil {
			s.logger.Error(err)
		}
	}
}
