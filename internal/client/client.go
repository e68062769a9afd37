package client

import (
	"crypto/tls"
	"net/http"
	"time"

	"omniture-reporter/internal/config"
	"omniture-reporter/internal/logging"
	"omniture-reporter/internal/wsse"
)

const (
	reportGetMethod  = "Report.Get"
	maxResponseBytes = 64 << 20
)

// AnalyticsClient talks to the analytics reporting API. It holds no
// per-request state, so one client may serve concurrent calls.
type AnalyticsClient struct {
	http   *http.Client
	cfg    config.ClientConfig
	signer wsse.Signer
	now    func() time.Time
	logger *logging.Logger
}

type Option func(*AnalyticsClient)

// WithSigner replaces the token signer, e.g. with fixed clock and nonce sources.
func WithSigner(signer wsse.Signer) Option {
	return func(c *AnalyticsClient) {
		c.signer = signer
	}
}

// WithClock replaces the clock used to measure report processing time.
func WithClock(now func() time.Time) Option {
	return func(c *AnalyticsClient) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a client. A nil httpClient gets one built from cfg; a nil logger,
// or cfg.Logging=false, silences all log output.
func New(httpClient *http.Client, cfg config.ClientConfig, logger *logging.Logger, opts ...Option) *AnalyticsClient {
	cfg = cfg.WithDefaults()
	if httpClient == nil {
		httpClient = NewHTTPClient(cfg)
	}
	if logger == nil || !cfg.Logging {
		logger = logging.Discard()
	}
	c := &AnalyticsClient{
		http:   httpClient,
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *AnalyticsClient) Config() config.ClientConfig {
	return c.cfg
}

// NewHTTPClient returns an HTTP client with the configured timeout and TLS
// verification mode.
func NewHTTPClient(cfg config.ClientConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, //nolint:gosec // explicitly requested by configuration
		}
	}
	return &http.Client{Timeout: cfg.HTTPTimeout, Transport: transport}
}
