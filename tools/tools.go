package tools

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/graynk/stickerbot/queue"
)

const (
	MaxSizeMb       = 20_000_000
	NotEnoughRights = "The bot does not have enough rights to send media to your chat"
	Failed          = "Failed"
	Queued          = "Your sticker is queued, it will be converted shortly"
)

var FetchErr = errors.New("failed to fetch media")
var EngineNotReadyErr = errors.New("transcoder is not loaded yet")
var EngineMissingErr = errors.New("transcoder is not provided")
var TranscodeOutputInvalidErr = errors.New("transcoder returned text instead of a file")
var OverlayFetchErr = errors.New("failed to render overlay text")
var CanvasUnavailableErr = errors.New("could not decode image into a raster surface")
var EmptyBlobErr = errors.New("could not convert raster surface to a file")

var NoFileErr = errors.New("no file found")
var TooBigErr = errors.New("Senpai, it's too big..")
var NotSupportedErr = errors.New("Not supported yet, sorry")
var UsageErr = errors.New("Usage: /send <image-url> [ctrl] [shift] [link] [animated] [overlay=<url>] [name=<file>] [text=<text>]")

var friendly = []struct {
	err     error
	message string
}{
	{FetchErr, "Could not download the sticker image"},
	{EngineNotReadyErr, "The converter is still starting up, try again in a moment"},
	{EngineMissingErr, "Animated and text stickers are not available right now"},
	{TranscodeOutputInvalidErr, "The converter choked on this sticker"},
	{OverlayFetchErr, "Could not render the sticker text"},
	{CanvasUnavailableErr, "This image could not be decoded"},
	{EmptyBlobErr, "This image could not be re-encoded"},
	{TooBigErr, TooBigErr.Error()},
	{NotSupportedErr, NotSupportedErr.Error()},
	{UsageErr, UsageErr.Error()},
	{queue.FullErr, queue.FullErr.Error()},
	{queue.MaintenanceErr, queue.MaintenanceErr.Error()},
	{queue.TooOftenErr, queue.TooOftenErr.Error()},
	{queue.ShutdownErr, queue.ShutdownErr.Error()},
}

// GetUserFriendlyErr returns a message safe to show to the user and whether err was recognized.
func GetUserFriendlyErr(err error) (string, bool) {
	for _, f := range friendly {
		if errors.Is(err, f.err) {
			return f.message, true
		}
	}
	return Failed, false
}

func ExtractPossibleTimeout(err error) (int, error) {
	// format: "telegram: retry after x (429)"
	errorString := err.Error()
	if strings.Contains(errorString, "kicked") {
		return 0, err
	}
	after := "after "
	retryAfterStringEnd := strings.LastIndex(errorString, after)
	if retryAfterStringEnd == -1 {
		return 0, err
	}
	timeoutEnd := strings.LastIndex(errorString, " (")
	if timeoutEnd == -1 {
		timeoutEnd = len(errorString)
	}
	return strconv.Atoi(errorString[retryAfterStringEnd+len(after) : timeoutEnd])
}

func FormatRateLimitResponse(retryIn time.Duration) string {
	return fmt.Sprintf("Please, not so often. Try again in %d seconds", int(retryIn.Round(time.Second)/time.Second))
}
