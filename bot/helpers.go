package bot

import (
	"context"
	"strings"
	"time"

	tb "gopkg.in/telebot.v3"

	"github.com/graynk/stickerbot/tools"
)

func text(s string) func() interface{} {
	return func() interface{} {
		return s
	}
}

// sendWithRepeater keeps resending while Telegram asks us to back off.
func (s *stickerBot) sendWithRepeater(ctx context.Context, to tb.Recipient, payload func() interface{}, opts ...interface{}) (*tb.Message, error) {
	m, err := s.sender.Send(to, payload(), opts...)
	for err != nil {
		if strings.Contains(err.Error(), "not enough rights to send") {
			s.sender.Send(to, tools.NotEnoughRights)
		}
		var timeout int
		timeout, err = tools.ExtractPossibleTimeout(err)
		if err != nil {
			s.logger.Error(err)
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(timeout) * time.Second):
		}
		m, err = s.sender.Send(to, payload(), opts...)
		if err != nil {
			s.logger.Error(err)
		}
	}

	return m, nil
}

func (s *stickerBot) reply(c tb.Context, message string) error {
	_, err := s.sendWithRepeater(context.Background(), c.Chat(), text(message))
	return err
}
