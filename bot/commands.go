package bot

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	tb "gopkg.in/telebot.v3"

	"github.com/graynk/stickerbot/dispatch"
	"github.com/graynk/stickerbot/media"
	"github.com/graynk/stickerbot/tools"
)

const textKey = "text="

// parseSend turns a /send payload into a request. text= swallows the rest of the payload.
func parseSend(payload string, sendAsLink bool) (dispatch.Request, error) {
	req := dispatch.Request{SendAsLink: sendAsLink}
	padded := " " + payload
	if i := strings.Index(padded, " "+textKey); i != -1 {
		req.OverlayText = strings.TrimSpace(padded[i+1+len(textKey):])
		padded = padded[:i]
	}

	sticker := &media.Sticker{}
	for _, arg := range strings.Fields(padded) {
		switch {
		case arg == "ctrl":
			req.Modifiers.Ctrl = true
		case arg == "shift":
			req.Modifiers.Shift = true
		case arg == "link":
			req.SendAsLink = true
		case arg == "file":
			req.SendAsLink = false
		case arg == "animated":
			sticker.Animated = true
		case strings.HasPrefix(arg, "overlay="):
			sticker.OverlayTemplateURL = strings.TrimPrefix(arg, "overlay=")
		case strings.HasPrefix(arg, "name="):
			sticker.Filename = strings.TrimPrefix(arg, "name=")
		case sticker.Image == "" && isWebURL(arg):
			sticker.Image = arg
		default:
			return req, errors.Wrapf(tools.UsageErr, "unexpected argument %q", arg)
		}
	}
	if sticker.Image == "" {
		return req, errors.WithStack(tools.UsageErr)
	}
	sticker.ID = media.LastPathSegment(sticker.Image, sticker.Image)
	req.Sticker = sticker
	return req, nil
}

func isWebURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func pendingReply(m *tb.Message) *dispatch.Reply {
	if m == nil || m.ReplyTo == nil || m.ReplyTo.Chat == nil {
		return nil
	}
	return &dispatch.Reply{
		ConversationID: conversationID(m.ReplyTo.Chat),
		MessageID:      strconv.Itoa(m.ReplyTo.ID),
		MentionAuthor:  true,
	}
}

func (s *stickerBot) HandleStart(c tb.Context) error {
	return s.reply(c, "Send me /send <image-url> and I'll deliver the sticker here. "+
		"Use /draft to set the text that goes along with it")
}

func (s *stickerBot) HandleSend(c tb.Context) error {
	m := c.Message()
	return s.deliver(context.Background(), conversationID(m.Chat), m.Payload, pendingReply(m))
}

func (s *stickerBot) deliver(ctx context.Context, conversation, payload string, reply *dispatch.Reply) error {
	req, err := parseSend(payload, s.settings.SendAsLink)
	if err != nil {
		return err
	}
	req.ConversationID = conversation
	if s.transcoder != nil {
		req.Transcoder = s.transcoder
		if (req.Sticker.Animated || req.Sticker.HasOverlay()) && s.transcoder.IsBusy() {
			to, err := recipient(conversation)
			if err == nil {
				if _, err = s.sendWithRepeater(ctx, to, text(tools.Queued)); err != nil {
					s.logger.Warnw("could not send queued notice", "conversation", conversation, "error", err)
				}
			}
		}
	}

	_, err = s.dispatcher.Deliver(withPendingReply(ctx, reply), req)
	return err
}

func (s *stickerBot) HandleDraft(c tb.Context) error {
	draft := strings.TrimSpace(c.Message().Payload)
	s.setDraft(conversationID(c.Chat()), draft)
	if draft == "" {
		return s.reply(c, "Draft cleared")
	}
	return s.reply(c, "Draft saved, it will go along with the next sticker")
}

func (s *stickerBot) HandleConfirm(c tb.Context) error {
	return s.confirm(context.Background(), conversationID(c.Chat()), pendingReply(c.Message()))
}

func (s *stickerBot) confirm(ctx context.Context, conversation string, reply *dispatch.Reply) error {
	files := s.takeStaged(conversation)
	if len(files) == 0 {
		return errors.WithStack(tools.NoFileErr)
	}
	uploads := make([]dispatch.UploadEntry, 0, len(files))
	for _, file := range files {
		uploads = append(uploads, dispatch.UploadEntry{File: file, Platform: dispatch.PlatformWeb})
	}
	return s.UploadFiles(ctx, dispatch.ImmediateUpload{
		ConversationID: conversation,
		DraftSlot:      dispatch.DraftSlot,
		SendOptions:    dispatch.SendOptions{Reply: reply},
		ParsedContent:  dispatch.Message{Content: s.GetDraft(conversation, dispatch.DraftSlot)},
		Uploads:        uploads,
	})
}

func (s *stickerBot) HandleCancel(c tb.Context) error {
	if files := s.takeStaged(conversationID(c.Chat())); len(files) == 0 {
		return s.reply(c, "Nothing to cancel")
	}
	return s.reply(c, "Dropped")
}
