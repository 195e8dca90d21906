package bot

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	tb "gopkg.in/telebot.v3"

	"github.com/graynk/stickerbot/dispatch"
	"github.com/graynk/stickerbot/media"
	"github.com/graynk/stickerbot/tools"
)

const confirmPrompt = "Send /confirm to upload %s or /cancel to drop it"

var _ dispatch.Host = (*stickerBot)(nil)

func recipient(conversationID string) (tb.ChatID, error) {
	id, err := strconv.ParseInt(conversationID, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "bad conversation id %q", conversationID)
	}
	return tb.ChatID(id), nil
}

func conversationID(chat *tb.Chat) string {
	return strconv.FormatInt(chat.ID, 10)
}

func telegramOptions(options dispatch.SendOptions) *tb.SendOptions {
	opts := &tb.SendOptions{}
	if options.Reply == nil {
		return opts
	}
	chatID, err := strconv.ParseInt(options.Reply.ConversationID, 10, 64)
	if err != nil {
		return opts
	}
	messageID, err := strconv.Atoi(options.Reply.MessageID)
	if err != nil {
		return opts
	}
	opts.ReplyTo = &tb.Message{ID: messageID, Chat: &tb.Chat{ID: chatID}}
	opts.AllowWithoutReply = true
	return opts
}

// uploadable builds a fresh payload on every call, since a consumed reader can't be resent.
func uploadable(file *media.File, caption string) func() interface{} {
	return func() interface{} {
		if file.MimeType == media.GIF {
			return &tb.Animation{
				File:     tb.FromReader(bytes.NewReader(file.Data)),
				FileName: file.Name,
				MIME:     file.MimeType,
				Caption:  caption,
			}
		}
		return &tb.Document{
			File:     tb.FromReader(bytes.NewReader(file.Data)),
			FileName: file.Name,
			MIME:     file.MimeType,
			Caption:  caption,
		}
	}
}

func (s *stickerBot) GetDraft(conversationID string, slot int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drafts[conversationID]
}

func (s *stickerBot) setDraft(conversationID, draft string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if draft == "" {
		delete(s.drafts, conversationID)
		return
	}
	s.drafts[conversationID] = draft
}

type replyKey struct{}

func withPendingReply(ctx context.Context, reply *dispatch.Reply) context.Context {
	return context.WithValue(ctx, replyKey{}, reply)
}

// GetPendingReply returns the reply carried by the request context.
// Every /send has its own, so concurrent deliveries into one chat can't mix them up.
func (s *stickerBot) GetPendingReply(ctx context.Context, conversationID string) *dispatch.Reply {
	reply, _ := ctx.Value(replyKey{}).(*dispatch.Reply)
	return reply
}

// UploadFiles sends every file, captioning the first one with the draft.
func (s *stickerBot) UploadFiles(ctx context.Context, upload dispatch.ImmediateUpload) error {
	to, err := recipient(upload.ConversationID)
	if err != nil {
		return err
	}
	opts := telegramOptions(upload.SendOptions)
	for i, entry := range upload.Uploads {
		if entry.File.Size() > tools.MaxSizeMb {
			return errors.WithStack(tools.TooBigErr)
		}
		caption := ""
		if i == 0 {
			caption = upload.ParsedContent.Content
		}
		if _, err = s.sendWithRepeater(ctx, to, uploadable(entry.File, caption), opts); err != nil {
			return errors.Wrapf(err, "uploading %s", entry.File.Name)
		}
	}
	s.setDraft(upload.ConversationID, "")
	return nil
}

// PromptToUpload stages files until the user confirms or cancels them.
func (s *stickerBot) PromptToUpload(ctx context.Context, files []*media.File, conversationID string, slot int) error {
	to, err := recipient(conversationID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.staged[conversationID] = files
	s.mu.Unlock()

	names := files[0].Name
	if len(files) > 1 {
		names = fmt.Sprintf("%d files", len(files))
	}
	_, err = s.sendWithRepeater(ctx, to, text(fmt.Sprintf(confirmPrompt, names)))
	return err
}

func (s *stickerBot) takeStaged(conversationID string) []*media.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := s.staged[conversationID]
	delete(s.staged, conversationID)
	return files
}

func (s *stickerBot) SendMessage(ctx context.Context, conversationID string, message dispatch.Message, options dispatch.SendOptions) error {
	to, err := recipient(conversationID)
	if err != nil {
		return err
	}
	if _, err = s.sendWithRepeater(ctx, to, text(message.Content), telegramOptions(options)); err != nil {
		return err
	}
	s.setDraft(conversationID, "")
	return nil
}
