package bot

import (
	"time"

	tb "gopkg.in/telebot.v3"

	"github.com/graynk/stickerbot/tools"
)

func (s *stickerBot) ErrMiddleware(h tb.HandlerFunc) tb.HandlerFunc {
	return func(c tb.Context) error {
		err := h(c)
		if err != nil {
			errStr, isFriendly := tools.GetUserFriendlyErr(err)
			if !isFriendly {
				s.logger.Error(err)
			}
			if sentErr := s.reply(c, errStr); sentErr != nil {
				s.logger.Error(sentErr)
			}
		}
		return err
	}
}

func (s *stickerBot) ShutdownMiddleware(h tb.HandlerFunc) tb.HandlerFunc {
	return func(c tb.Context) error {
		s.graceWg.Add(1)
		defer s.graceWg.Done()
		return h(c)
	}
}

func (s *stickerBot) RateLimitMiddleware(h tb.HandlerFunc) tb.HandlerFunc {
	return func(c tb.Context) error {
		if ok, retryIn := s.rl.Allow(c.Chat().ID, time.Now()); !ok {
			return s.reply(c, tools.FormatRateLimitResponse(retryIn))
		}
		return h(c)
	}
}
