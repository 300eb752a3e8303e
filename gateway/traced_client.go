package gateway

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

// Timings are the connection phases of one request. Phases skipped on a
// reused connection stay zero.
type Timings struct {
	DNS         time.Duration
	Connect     time.Duration
	TLS         time.Duration
	TTFB        time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

// TracedClient sends the audio upload with an httptrace hook so the
// diagnostics log can show where the time went. Chat completions share the
// same pooled connections through HTTPClient.
type TracedClient struct {
	client *http.Client
}

func NewTracedClient() *TracedClient {
	return &TracedClient{client: &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}}
}

func (c *TracedClient) HTTPClient() *http.Client { return c.client }

// TracedResponse is a fully read response.
type TracedResponse struct {
	StatusCode int
	Body       []byte
	Timings    Timings
}

// Do sends req, reads the whole body and reports the phase timings.
func (c *TracedClient) Do(req *http.Request) (*TracedResponse, error) {
	var t Timings
	var dnsAt, dialAt, tlsAt, sentAt time.Time
	trace := &httptrace.ClientTrace{
		GotConn:      func(info httptrace.GotConnInfo) { t.ConnReused = info.Reused },
		DNSStart:     func(httptrace.DNSStartInfo) { dnsAt = time.Now() },
		DNSDone:      func(httptrace.DNSDoneInfo) { t.DNS = time.Since(dnsAt) },
		ConnectStart: func(string, string) { dialAt = time.Now() },
		ConnectDone:  func(string, string, error) { t.Connect = time.Since(dialAt) },

		TLSHandshakeStart: func() { tlsAt = time.Now() },
		TLSHandshakeDone: func(cs tls.ConnectionState, _ error) {
			t.TLS = time.Since(tlsAt)
			t.TLSProtocol = cs.NegotiatedProtocol
		},
		WroteRequest:         func(httptrace.WroteRequestInfo) { sentAt = time.Now() },
		GotFirstResponseByte: func() { t.TTFB = time.Since(sentAt) },
	}

	start := time.Now()
	resp, err := c.client.Do(req.WithContext(httptrace.WithClientTrace(req.Context(), trace)))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	t.Total = time.Since(start)
	return &TracedResponse{StatusCode: resp.StatusCode, Body: body, Timings: t}, nil
}
