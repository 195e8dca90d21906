package dispatch

import (
	"context"

	"github.com/graynk/stickerbot/media"
)

const (
	DraftSlot   = 0
	PlatformWeb = 1
)

// Reply is the message the user is currently replying to.
type Reply struct {
	ConversationID string
	MessageID      string
	MentionAuthor  bool
}

type SendOptions struct {
	Reply *Reply
}

type Message struct {
	Content string
}

type UploadEntry struct {
	File     *media.File
	Platform int
}

type ImmediateUpload struct {
	ConversationID string
	DraftSlot      int
	HasSpoiler     bool
	SendOptions    SendOptions
	ParsedContent  Message
	Uploads        []UploadEntry
}

// Host is everything the dispatcher needs from the chat client.
type Host interface {
	GetDraft(conversationID string, slot int) string
	GetPendingReply(ctx context.Context, conversationID string) *Reply
	UploadFiles(ctx context.Context, upload ImmediateUpload) error
	PromptToUpload(ctx context.Context, files []*media.File, conversationID string, slot int) error
	SendMessage(ctx context.Context, conversationID string, message Message, options SendOptions) error
}

// TextInserter is implemented by hosts whose active composer accepts inserted text.
// InsertText reports false when there's no composer to insert into.
type TextInserter interface {
	InsertText(ctx context.Context, conversationID, text string) bool
}

// Recorder is told about every successful delivery.
type Recorder interface {
	Record(conversationID string, mode Mode, animated bool)
}
