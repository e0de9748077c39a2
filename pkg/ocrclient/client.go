package ocrclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/denysvitali/odi-invoices/pkg/extraction"
	"github.com/denysvitali/odi-invoices/pkg/models"
	"github.com/denysvitali/odi-invoices/pkg/ocrerrors"
)

const (
	DefaultPath = "/api/v1/ocr"

	// Extraction responses for large multi-page documents can be big, but
	// never bigger than this.
	maxResponseSize = 50 << 20
)

var (
	_ extraction.Extractor     = (*Client)(nil)
	_ extraction.HealthChecker = (*Client)(nil)
)

type Client struct {
	http     *http.Client
	endpoint *url.URL
	path     string
	limiter  *rate.Limiter
}

type Option func(*Client)

var logger = logrus.StandardLogger().WithField("package", "ocr_client")

func WithHttpTransport(transport http.RoundTripper) Option {
	return func(c *Client) {
		c.http.Transport = transport
	}
}

// WithRateLimit caps the request rate towards the extraction service. Uploads
// are otherwise sent concurrently.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

func WithPath(path string) Option {
	return func(c *Client) {
		c.path = path
	}
}

func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("scheme %s is not supported", u.Scheme)
	}

	c := &Client{
		endpoint: u,
		http:     &http.Client{},
		path:     DefaultPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) SetHttpTransport(transport http.RoundTripper) {
	c.http.Transport = transport
}

// Extract posts the document to the OCR API. Timeouts are driven by ctx.
func (c *Client) Extract(ctx context.Context, doc *models.RawDocument) ([]models.OcrResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, ocrerrors.Transient(err, "rate limiter")
		}
	}

	ocrUrl, err := c.endpoint.Parse(c.path)
	if err != nil {
		return nil, ocrerrors.Internal(err, "unable to parse URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ocrUrl.String(), bytes.NewReader(doc.Data))
	if err != nil {
		return nil, ocrerrors.Internal(err, "unable to create request")
	}
	req.Header.Set("Content-Type", doc.MediaType)
	req.Header.Set("Accept", "application/json")
	if doc.FileName != "" {
		req.Header.Set("X-File-Name", doc.FileName)
	}

	logger.Debugf("sending %s to %s", doc, ocrUrl)
	res, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize+1))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if len(body) > maxResponseSize {
		return nil, ocrerrors.Internal(nil, "response exceeds %d bytes", maxResponseSize)
	}

	if err := classifyStatus(res, body); err != nil {
		return nil, err
	}

	responses, err := extraction.DecodeResponses(body)
	if err != nil {
		logger.Warnf("malformed response for %s: %s", doc, truncate(body, 512))
		return nil, err
	}
	logger.Debugf("received %d responses for %s", len(responses), doc)
	return responses, nil
}

// Healthz checks if the OCR service is healthy and returns true if it is.
func (c *Client) Healthz(ctx context.Context) (bool, error) {
	healthEndpoint, err := c.endpoint.Parse("/healthz")
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthEndpoint.String(), nil)
	if err != nil {
		return false, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	return res.StatusCode == http.StatusOK, nil
}

func classifyStatus(res *http.Response, body []byte) error {
	if res.StatusCode >= 200 && res.StatusCode <= 299 {
		return nil
	}
	msg := serviceMessage(body)
	if msg == "" {
		msg = res.Status
	} else {
		msg = fmt.Sprintf("%s: %s", res.Status, msg)
	}

	switch {
	case res.StatusCode == http.StatusRequestTimeout,
		res.StatusCode == http.StatusTooManyRequests,
		res.StatusCode >= 500:
		return ocrerrors.Transient(nil, "extraction service returned %s", msg)
	default:
		return ocrerrors.Permanent(nil, "extraction service rejected the document: %s", msg)
	}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return ocrerrors.Transient(err, "request cancelled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ocrerrors.Transient(err, "request timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ocrerrors.Transient(err, "request timed out")
	}
	return ocrerrors.Transient(err, "unable to perform HTTP request")
}

func serviceMessage(body []byte) string {
	var errorMessage struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errorMessage); err == nil {
		if errorMessage.Error != "" {
			return errorMessage.Error
		}
		return errorMessage.Message
	}
	return strings.TrimSpace(string(truncate(body, 200)))
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
