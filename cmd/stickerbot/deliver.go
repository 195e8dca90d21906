package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/graynk/stickerbot/dispatch"
	"github.com/graynk/stickerbot/media"
	"github.com/graynk/stickerbot/transcoder"
)

type deliverFlags struct {
	ctrl, shift, link, animated bool
	overlay, text, name         string
	draft, outDir               string
}

func deliverCmd() *cobra.Command {
	flags := &deliverFlags{}
	cmd := &cobra.Command{
		Use:   "deliver <image-url>",
		Short: "Deliver a single sticker to the console",
		Long: `Runs one delivery through the same pipeline the bot uses. Files are written
to --out, messages and inserted text are printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeliver(cmd, args[0], flags)
		},
	}
	cmd.Flags().BoolVar(&flags.ctrl, "ctrl", false, "stage the file, or insert the link with --shift")
	cmd.Flags().BoolVar(&flags.shift, "shift", false, "append the link to the draft")
	cmd.Flags().BoolVar(&flags.link, "link", false, "send as a link instead of a file")
	cmd.Flags().BoolVar(&flags.animated, "animated", false, "convert an animated png to gif")
	cmd.Flags().StringVar(&flags.overlay, "overlay", "", "overlay template url")
	cmd.Flags().StringVar(&flags.text, "text", "", "custom overlay text")
	cmd.Flags().StringVar(&flags.name, "name", "", "output filename")
	cmd.Flags().StringVar(&flags.draft, "draft", "", "draft text to send along")
	cmd.Flags().StringVarP(&flags.outDir, "out", "o", ".", "directory to write files to")
	return cmd
}

func runDeliver(cmd *cobra.Command, imageURL string, flags *deliverFlags) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	ctx := context.Background()

	sticker := &media.Sticker{
		ID:                 media.LastPathSegment(imageURL, imageURL),
		Image:              imageURL,
		Animated:           flags.animated,
		OverlayTemplateURL: flags.overlay,
		Filename:           flags.name,
	}
	req := dispatch.Request{
		ConversationID: "console",
		Sticker:        sticker,
		Modifiers:      dispatch.Modifiers{Ctrl: flags.ctrl, Shift: flags.shift},
		SendAsLink:     flags.link || cfg.SendAsLink,
		OverlayText:    flags.text,
	}

	if sticker.Animated || sticker.HasOverlay() {
		t := transcoder.New(transcoder.NewFFmpegEngine(cfg.FFmpegBinary, logger), 1, logger)
		defer t.Close()
		if err = t.Load(ctx); err != nil {
			return err
		}
		req.Transcoder = t
	}

	f := newFetcher(cfg, logger)
	host := &consoleHost{draft: flags.draft, outDir: flags.outDir, out: cmd.OutOrStdout()}
	d := dispatch.New(host, f, newResolver(cfg, f, logger), logger, dispatch.WithTimeout(cfg.DeliveryTimeout))
	outcome, err := d.Deliver(ctx, req)
	if err != nil {
		return err
	}
	logger.Debugw("delivered", "mode", outcome.Mode())
	return nil
}
