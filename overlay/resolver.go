// Package overlay turns LINE "custom text" sticker templates into a rendered overlay image.
package overlay

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/graynk/stickerbot/fetcher"
	"github.com/graynk/stickerbot/tools"
)

const (
	DefaultEndpoint = "https://store.line.me"
	DefaultRPS      = 2
	DefaultBurst    = 4
)

var templatePattern = regexp.MustCompile(`product/(\d+)/sticker/(\d+)`)

// encodeURIComponent leaves these alone, url.QueryEscape doesn't.
var componentEscaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) (*fetcher.Response, error)
	Objects() *fetcher.ObjectStore
}

type Resolver struct {
	endpoint string
	fetcher  Fetcher
	limiter  *rate.Limiter
	logger   *zap.SugaredLogger
}

func NewResolver(endpoint string, f Fetcher, limiter *rate.Limiter, logger *zap.SugaredLogger) *Resolver {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if limiter == nil {
		limiter = rate.NewLimiter(DefaultRPS, DefaultBurst)
	}
	return &Resolver{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		fetcher:  f,
		limiter:  limiter,
		logger:   logger,
	}
}

func escapeComponent(s string) string {
	return componentEscaper.Replace(url.QueryEscape(s))
}

// RenderURL is the text-render endpoint for a product/sticker pair.
func (r *Resolver) RenderURL(productID, stickerID, text string) string {
	return fmt.Sprintf("%s/overlay/sticker/%s/%s/iPhone/sticker.png?text=%s",
		r.endpoint, productID, stickerID, escapeComponent(text))
}

func Referer(productID string) string {
	return fmt.Sprintf("https://store.line.me/stickershop/product/%s/ja", productID)
}

// Resolve returns a blob: reference to the rendered overlay, or templateURL itself
// when it isn't a recognized template or there's no text to render.
func (r *Resolver) Resolve(ctx context.Context, templateURL, text string) (string, error) {
	match := templatePattern.FindStringSubmatch(templateURL)
	if match == nil || text == "" {
		r.logger.Debugw("overlay passed through", "template", templateURL)
		return templateURL, nil
	}
	productID, stickerID := match[1], match[2]

	if err := r.limiter.Wait(ctx); err != nil {
		return "", errors.Wrapf(tools.OverlayFetchErr, "waiting to render overlay: %v", err)
	}
	renderURL := r.RenderURL(productID, stickerID, text)
	resp, err := r.fetcher.Fetch(ctx, renderURL, map[string]string{
		"Referer": Referer(productID),
	})
	if err != nil {
		return "", errors.Wrapf(tools.OverlayFetchErr, "product %s sticker %s: %v", productID, stickerID, err)
	}
	r.logger.Debugw("overlay rendered", "product", productID, "sticker", stickerID, "bytes", len(resp.Body))
	return r.fetcher.Objects().Put(resp.Body, resp.ContentType), nil
}
