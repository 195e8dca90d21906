package fetcher

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var PrivateTargetErr = errors.New("relay target is not a public address")

// publicOnly refuses connections to loopback, private, link-local and unspecified
// addresses. It runs on the resolved address, so DNS names can't sneak past it.
func publicOnly(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return errors.WithStack(err)
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
		return errors.Wrap(PrivateTargetErr, host)
	}
	return nil
}

// NewPublicClient is an http.Client that can only reach public addresses,
// redirects included. It ignores proxy environment variables.
func NewPublicClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   publicOnly,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.DialContext(ctx, network, addr)
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Relay is the server side of HTTPProxy: it fetches ?url= on behalf of the caller
// and streams status, content type and body back.
type Relay struct {
	client      *http.Client
	maxBodySize int64
	logger      *zap.SugaredLogger
}

// NewRelay serves through client. A nil client means NewPublicClient without a timeout.
func NewRelay(client *http.Client, maxBodySize int64, logger *zap.SugaredLogger) *Relay {
	if client == nil {
		client = NewPublicClient(0)
	}
	return &Relay{client: client, maxBodySize: maxBodySize, logger: logger}
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	target, err := url.Parse(req.URL.Query().Get("url"))
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		http.Error(w, "url must be an absolute http(s) URL", http.StatusBadRequest)
		return
	}

	outbound, err := http.NewRequestWithContext(req.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for name, values := range req.Header {
		canonical := http.CanonicalHeaderKey(RelayHeaderPrefix)
		if !strings.HasPrefix(name, canonical) || len(values) == 0 {
			continue
		}
		outbound.Header.Set(strings.TrimPrefix(name, canonical), values[0])
	}

	resp, err := r.client.Do(outbound)
	if errors.Is(err, PrivateTargetErr) {
		r.logger.Warnw("relay refused private target", "url", target.String())
		http.Error(w, "target address is not allowed", http.StatusForbidden)
		return
	}
	if err != nil {
		r.logger.Warnw("relay fetch failed", "url", target.String(), "error", err)
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, io.LimitReader(resp.Body, r.maxBodySize)); err != nil {
		r.logger.Debugw("relay copy interrupted", "url", target.String(), "error", err)
	}
}
