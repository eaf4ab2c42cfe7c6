package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/tordoctor/doctor/internal/types"
)

// Directory resources served by authorities.
const (
	ConsensusResource = "/tor/status-vote/current/consensus.z"
	VoteResource      = "/tor/status-vote/current/authority.z"
	ServerDescriptors = "/tor/server/all.z"
	ExtraInfo         = "/tor/extra/all.z"
	// OwnDescriptor is the server descriptor of the answering relay.
	OwnDescriptor = "/tor/server/authority"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultUserAgent = "consensus-doctor/v1"
	maxDocumentSize  = 256 << 20
)

// Response is a downloaded and decompressed document.
type Response struct {
	URL  string
	Body []byte
	// Date is the server's Date header, zero when absent or malformed.
	Date    time.Time
	Elapsed time.Duration
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Timeout bounds each request. Defaults to 60 seconds.
	Timeout   time.Duration
	UserAgent string
}

// Client downloads documents from authority DirPorts.
type Client struct {
	http      *http.Client
	logger    *zap.Logger
	userAgent string
}

// NewClient creates a Client.
func NewClient(logger *zap.Logger, cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// Authorities compress on their own; the body is decoded below.
	transport.DisableCompression = true
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout, Transport: transport},
		logger:    logger.Named("client"),
		userAgent: cfg.UserAgent,
	}
}

// URL returns the download URL of a resource on the authority's DirPort.
func URL(a types.Authority, resource string) string {
	return "http://" + net.JoinHostPort(a.Address, strconv.Itoa(a.DirPort)) + resource
}

// Get downloads a resource from the authority. Failures are returned as
// *Error.
func (c *Client) Get(ctx context.Context, a types.Authority, resource string) (*Response, error) {
	url := URL(a, resource)
	fail := func(err error) (*Response, error) {
		return nil, &Error{Authority: a.Nickname, URL: url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail(err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", "deflate, x-zstd, identity")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fail(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("HTTP %d", resp.StatusCode))
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return fail(fmt.Errorf("read body: %w", err))
	}
	elapsed := time.Since(start)

	body, err := decode(resp.Header.Get("Content-Encoding"), resource, raw)
	if err != nil {
		return fail(err)
	}

	out := &Response{URL: url, Body: body, Elapsed: elapsed}
	if date := resp.Header.Get("Date"); date != "" {
		if t, err := http.ParseTime(date); err == nil {
			out.Date = t.UTC()
		} else {
			c.logger.Debug("Ignoring malformed Date header",
				zap.String("authority", a.Nickname),
				zap.String("date", date),
			)
		}
	}
	c.logger.Debug("Downloaded document",
		zap.String("url", url),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", elapsed),
	)
	return out, nil
}

// decode undoes the Content-Encoding. Older authorities send ".z" resources
// zlib-compressed without announcing it, so those are sniffed.
func decode(encoding, resource string, raw []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "deflate":
		return inflate(raw)
	case "x-zstd", "zstd":
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return out, nil
	case "", "identity":
		if strings.HasSuffix(resource, ".z") && looksLikeZlib(raw) {
			return inflate(raw)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

func inflate(raw []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	return out, nil
}

// looksLikeZlib checks the RFC 1950 header.
func looksLikeZlib(b []byte) bool {
	return len(b) >= 2 && b[0]&0x0f == 8 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}
