package bot

import (
	"fmt"

	tb "gopkg.in/telebot.v3"

	"github.com/graynk/stickerbot/stats"
)

func (s *stickerBot) HandleStatRequest(c tb.Context, period stats.Period) error {
	if c.Sender() == nil || c.Sender().ID != s.settings.AdminID || s.db == nil {
		return nil
	}
	stat, err := s.db.GetStat(period)
	if err != nil {
		s.logger.Error(err)
		return c.Send(err.Error())
	}
	header := "Stats for the past %s"
	switch period {
	case stats.Daily:
		header = fmt.Sprintf(header, "24 hours")
	case stats.Weekly:
		header = fmt.Sprintf(header, "week")
	case stats.Monthly:
		header = fmt.Sprintf(header, "month")
	}
	message := fmt.Sprintf("*%s*\nDelivered %d stickers in %d distinct chats, %d of which were animated\n",
		header, stat.Deliveries, stat.Chats, stat.Animated)
	details := fmt.Sprintf(`
*Breakdown by mode*
_Uploads_: %d
_Confirmed uploads_: %d
_Inserted links_: %d
_Sent links_: %d
`,
		stat.Uploads, stat.Prompts, stat.Inserts, stat.Sends)
	return c.Send(message+details, tb.ModeMarkdown)
}

func (s *stickerBot) HandleQueueStats(c tb.Context) error {
	if c.Sender() == nil || c.Sender().ID != s.settings.AdminID {
		return nil
	}
	if s.transcoder == nil {
		return c.Send("Transcoder is disabled")
	}
	length, chats := s.transcoder.QueueStats()
	return c.Send(fmt.Sprintf("Transcoder is %s. Currently in queue: %d requests from %d chats",
		s.transcoder.State(), length, chats))
}

func (s *stickerBot) HandleMaintenance(c tb.Context) error {
	if c.Sender() == nil || c.Sender().ID != s.settings.AdminID {
		return nil
	}
	return c.Send(s.toggleMaintenance())
}

// toggleMaintenance flips the transcoder queue between accepting and refusing new work.
func (s *stickerBot) toggleMaintenance() string {
	if s.transcoder == nil {
		return "Transcoder is disabled"
	}
	if s.transcoder.ToggleMaintenance() {
		s.logger.Warn("transcoder queue is in maintenance")
		return "Maintenance on: animated and text stickers are refused until /maintenance is sent again"
	}
	s.logger.Info("transcoder queue is accepting work again")
	return "Maintenance off"
}
