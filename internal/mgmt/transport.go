package mgmt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjacquet/cpmgmt/internal/logging"
	"github.com/fjacquet/cpmgmt/internal/models"
	"github.com/fjacquet/cpmgmt/internal/telemetry"
	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Connection pool configuration
	maxIdleConns        = 10               // One client talks to a single management server
	maxIdleConnsPerHost = 10               // Idle connections per host (default is 2)
	idleConnTimeout     = 90 * time.Second // Timeout for idle connections
	tlsHandshakeTimeout = 10 * time.Second

	closeTimeout = 30 * time.Second // Maximum wait for in-flight requests on Close
)

// TransportOption configures optional HTTPTransport settings.
type TransportOption func(*transportOptions)

type transportOptions struct {
	tracerProvider trace.TracerProvider
}

// WithTransportTracerProvider sets the TracerProvider used for http.request spans.
// If not provided, tracing operations use a noop provider (no overhead).
func WithTransportTracerProvider(tp trace.TracerProvider) TransportOption {
	return func(o *transportOptions) {
		o.tracerProvider = tp
	}
}

// HTTPTransport posts JSON requests to the management server with Resty.
// It owns TLS, proxy and timeout settings; the dispatcher owns headers
// and bodies.
type HTTPTransport struct {
	client  *resty.Client
	tracing *TracerWrapper

	// Connection tracking for graceful shutdown
	mu         sync.Mutex
	activeReqs int32
	closed     bool
	closeChan  chan struct{}
}

// NewHTTPTransport creates a transport for cfg.MgmtServer.
//
// TLS verification follows these rules:
//   - certificate set: the server must present that certificate (PEM or DER),
//     acceptInvalidCerts is ignored
//   - acceptInvalidCerts set: verification is disabled
//   - otherwise the system roots are used
//
// Transport-level failures are never retried.
func NewHTTPTransport(cfg models.Config, opts ...TransportOption) (*HTTPTransport, error) {
	var options transportOptions
	for _, opt := range opts {
		opt(&options)
	}

	tlsConfig, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	client := resty.New().
		SetTimeout(cfg.GetConnectTimeout()).
		SetRetryCount(0)

	httpClient := client.GetClient()
	httpClient.Transport = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
		TLSClientConfig:     tlsConfig,
	}

	if cfg.MgmtServer.Proxy != "" {
		client.SetProxy(cfg.MgmtServer.Proxy)
	}

	return &HTTPTransport{
		client:  client,
		tracing: NewTracerWrapper(options.tracerProvider, tracerNameTransport),
	}, nil
}

// buildTLSConfig returns the TLS settings for cfg.
func buildTLSConfig(cfg models.Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if cfg.MgmtServer.Certificate != "" {
		cert, err := loadCertificate(cfg.MgmtServer.Certificate)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		pool.AddCert(cert)
		tlsConfig.RootCAs = pool
		return tlsConfig, nil
	}

	if cfg.MgmtServer.AcceptInvalidCerts {
		log.Error("SECURITY WARNING: TLS certificate verification disabled - this is insecure for production use")
		tlsConfig.InsecureSkipVerify = true
	}

	return tlsConfig, nil
}

// loadCertificate reads a PEM or DER encoded certificate.
func loadCertificate(path string) (*x509.Certificate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate %s: %w", path, err)
	}

	der := raw
	if block, _ := pem.Decode(raw); block != nil {
		der = block.Bytes
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate %s: %w", path, err)
	}
	return cert, nil
}

// Send posts req.Body to req.URL.
//
// When OpenTelemetry tracing is enabled, Send creates an http.request span,
// records HTTP semantic convention attributes and injects W3C trace context
// into the request headers.
//
// An error is returned only when no HTTP response was received.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*RawResponse, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClientClosed
	}
	atomic.AddInt32(&t.activeReqs, 1)
	client := t.client
	t.mu.Unlock()

	defer func() {
		if atomic.AddInt32(&t.activeReqs, -1) == 0 {
			t.mu.Lock()
			if t.closed && t.closeChan != nil {
				close(t.closeChan)
				t.closeChan = nil
			}
			t.mu.Unlock()
		}
	}()

	ctx, span := t.tracing.StartSpan(ctx, "http.request", trace.SpanKindClient)
	defer span.End()

	startTime := time.Now()
	headers := injectTraceContext(ctx, req.Headers)

	resp, err := client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(req.Body).
		Post(req.URL)

	duration := time.Since(startTime)

	if err != nil {
		var certErr *tls.CertificateVerificationError
		if errors.As(err, &certErr) {
			logging.LogError(fmt.Sprintf(telemetry.ErrTLSTemplate, req.URL, err))
		}
		recordError(span, err)
		return nil, fmt.Errorf("HTTP request to %s failed: %w", req.URL, err)
	}

	recordHTTPAttributes(span, http.MethodPost, req.URL, resp.StatusCode(),
		int64(len(req.Body)), int64(len(resp.Body())), duration)
	span.SetStatus(codes.Ok, "Request completed")

	url := req.URL
	if resp.RawResponse != nil && resp.RawResponse.Request != nil && resp.RawResponse.Request.URL != nil {
		url = resp.RawResponse.Request.URL.String()
	}

	return &RawResponse{
		StatusCode: resp.StatusCode(),
		URL:        url,
		Headers:    resp.Header(),
		Body:       resp.Body(),
	}, nil
}

// recordHTTPAttributes records HTTP semantic convention attributes on the span.
func recordHTTPAttributes(span trace.Span, method, url string, statusCode int, requestSize, responseSize int64, duration time.Duration) {
	if span == nil {
		return
	}

	span.SetAttributes(
		attribute.String(telemetry.AttrHTTPMethod, method),
		attribute.String(telemetry.AttrHTTPURL, url),
		attribute.Int(telemetry.AttrHTTPStatusCode, statusCode),
		attribute.Int64(telemetry.AttrHTTPRequestContentLength, requestSize),
		attribute.Int64(telemetry.AttrHTTPResponseContentLength, responseSize),
		attribute.Float64(telemetry.AttrHTTPDurationMS, float64(duration.Milliseconds())),
	)
}

// injectTraceContext returns a copy of headers with W3C trace context added
// by the global propagator. The input map is not modified.
func injectTraceContext(ctx context.Context, headers map[string]string) map[string]string {
	carrier := propagation.MapCarrier{}
	for k, v := range headers {
		carrier.Set(k, v)
	}

	otel.GetTextMapPropagator().Inject(ctx, carrier)

	result := make(map[string]string, len(carrier))
	for k, v := range carrier {
		result[k] = v
	}
	return result
}

// Close waits for in-flight requests (up to 30 seconds) and releases idle
// connections.
//
// Returns an error if the transport is already closed.
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport already closed")
	}
	t.closed = true

	activeCount := atomic.LoadInt32(&t.activeReqs)
	if activeCount > 0 {
		t.closeChan = make(chan struct{})
		ch := t.closeChan
		t.mu.Unlock()

		timer := time.NewTimer(closeTimeout)
		defer timer.Stop()

		select {
		case <-ch:
			log.Debug("All active requests completed during shutdown")
		case <-timer.C:
			log.Warnf("Timeout waiting for %d active requests during shutdown", activeCount)
		}
	} else {
		t.mu.Unlock()
	}

	t.mu.Lock()
	if t.client != nil {
		t.client.GetClient().CloseIdleConnections()
		t.client = nil
	}
	t.mu.Unlock()

	return nil
}
