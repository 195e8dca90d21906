package fetcher

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/graynk/stickerbot/tools"
)

// Response is a fully read fetch result.
type Response struct {
	URL         string
	Status      int
	ContentType string
	Body        []byte
}

type Config struct {
	Timeout     time.Duration
	MaxBodySize int64
	UserAgent   string
}

func DefaultConfig() Config {
	return Config{
		Timeout:     30 * time.Second,
		MaxBodySize: tools.MaxSizeMb,
		UserAgent:   "stickerbot/1.0",
	}
}

// Fetcher retrieves remote bytes, falling back to a relay when the direct request
// can't reach the origin at all.
type Fetcher struct {
	config  Config
	client  *http.Client
	proxy   Proxy
	breaker *gobreaker.CircuitBreaker[*http.Response]
	objects *ObjectStore
	logger  *zap.SugaredLogger
}

type Option func(*Fetcher)

func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

func WithProxy(proxy Proxy) Option {
	return func(f *Fetcher) {
		f.proxy = proxy
	}
}

func WithObjectStore(store *ObjectStore) Option {
	return func(f *Fetcher) {
		f.objects = store
	}
}

func New(config Config, logger *zap.SugaredLogger, opts ...Option) *Fetcher {
	f := &Fetcher{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		objects: NewObjectStore(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "fetch-proxy",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnw("proxy breaker state changed", "from", from.String(), "to", to.String())
		},
	})
	return f
}

func (f *Fetcher) Objects() *ObjectStore {
	return f.objects
}

// Fetch returns the body of url. blob: references are read from the object store.
func (f *Fetcher) Fetch(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	if IsObjectRef(url) {
		data, mimeType, ok := f.objects.Get(url)
		if !ok {
			return nil, errors.Wrapf(tools.FetchErr, "%s: revoked or unknown object", url)
		}
		return &Response{URL: url, Status: http.StatusOK, ContentType: mimeType, Body: data}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(tools.FetchErr, "%s: %v", url, err)
	}
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(tools.FetchErr, "%s: %v", url, ctx.Err())
		}
		if f.proxy == nil {
			return nil, errors.Wrapf(tools.FetchErr, "%s: %v", url, err)
		}
		f.logger.Debugw("direct fetch failed, going through the relay", "url", url, "error", err)
		resp, err = f.breaker.Execute(func() (*http.Response, error) {
			return f.proxy.Fetch(ctx, url, headers)
		})
		if err != nil {
			return nil, errors.Wrapf(tools.FetchErr, "%s via relay: %v", url, err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrapf(tools.FetchErr, "%s: HTTP status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodySize+1))
	if err != nil {
		return nil, errors.Wrapf(tools.FetchErr, "%s: reading body: %v", url, err)
	}
	if int64(len(body)) > f.config.MaxBodySize {
		return nil, errors.Wrapf(tools.TooBigErr, "%s: more than %d bytes", url, f.config.MaxBodySize)
	}

	return &Response{
		URL:         url,
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
