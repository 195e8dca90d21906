package fetcher

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// RelayHeaderPrefix marks request headers the relay must replay against the origin.
const RelayHeaderPrefix = "X-Relay-Header-"

// Proxy relays a GET through a same-origin endpoint. The caller closes the body.
type Proxy interface {
	Fetch(ctx context.Context, url string, headers map[string]string) (*http.Response, error)
}

// HTTPProxy talks to a Relay over HTTP.
type HTTPProxy struct {
	endpoint string
	client   *http.Client
}

func NewHTTPProxy(endpoint string, client *http.Client) *HTTPProxy {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProxy{endpoint: endpoint, client: client}
}

func (p *HTTPProxy) Fetch(ctx context.Context, target string, headers map[string]string) (*http.Response, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "relay endpoint")
	}
	query := u.Query()
	query.Set("url", target)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for name, value := range headers {
		req.Header.Set(RelayHeaderPrefix+name, value)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return resp, nil
}
