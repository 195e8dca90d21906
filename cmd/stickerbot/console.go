package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/graynk/stickerbot/dispatch"
	"github.com/graynk/stickerbot/media"
)

// consoleHost delivers into a directory and a writer instead of a chat.
// Its composer is the writer, so text can always be inserted.
type consoleHost struct {
	draft  string
	outDir string
	out    io.Writer
}

var (
	_ dispatch.Host         = (*consoleHost)(nil)
	_ dispatch.TextInserter = (*consoleHost)(nil)
)

func (h *consoleHost) GetDraft(conversationID string, slot int) string {
	return h.draft
}

func (h *consoleHost) GetPendingReply(ctx context.Context, conversationID string) *dispatch.Reply {
	return nil
}

func (h *consoleHost) write(files []*media.File) error {
	if err := os.MkdirAll(h.outDir, 0o755); err != nil {
		return errors.WithStack(err)
	}
	for _, file := range files {
		path := filepath.Join(h.outDir, filepath.Base(file.Name))
		if err := os.WriteFile(path, file.Data, 0o644); err != nil {
			return errors.WithStack(err)
		}
		fmt.Fprintf(h.out, "wrote %s (%s, %d bytes)\n", path, file.MimeType, file.Size())
	}
	return nil
}

func (h *consoleHost) UploadFiles(ctx context.Context, upload dispatch.ImmediateUpload) error {
	files := make([]*media.File, 0, len(upload.Uploads))
	for _, entry := range upload.Uploads {
		files = append(files, entry.File)
	}
	if err := h.write(files); err != nil {
		return err
	}
	if upload.ParsedContent.Content != "" {
		fmt.Fprintf(h.out, "caption: %s\n", upload.ParsedContent.Content)
	}
	return nil
}

func (h *consoleHost) PromptToUpload(ctx context.Context, files []*media.File, conversationID string, slot int) error {
	if err := h.write(files); err != nil {
		return err
	}
	fmt.Fprintln(h.out, "staged for upload")
	return nil
}

func (h *consoleHost) SendMessage(ctx context.Context, conversationID string, message dispatch.Message, options dispatch.SendOptions) error {
	_, err := fmt.Fprintf(h.out, "sent: %s\n", message.Content)
	return errors.WithStack(err)
}

func (h *consoleHost) InsertText(ctx context.Context, conversationID, text string) bool {
	_, err := fmt.Fprintf(h.out, "inserted: %s\n", text)
	return err == nil
}
