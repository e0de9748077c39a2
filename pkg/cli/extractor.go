package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/denysvitali/odi-invoices/pkg/extraction"
	"github.com/denysvitali/odi-invoices/pkg/gemini"
	"github.com/denysvitali/odi-invoices/pkg/ocrclient"
	"github.com/denysvitali/odi-invoices/pkg/ocrclient/caroundtripper"
)

const (
	BackendHttp   = "http"
	BackendGemini = "gemini"
)

// ExtractionArgs configures the extraction backend and its retry policy.
type ExtractionArgs struct {
	Backend        string        `arg:"--backend,env:OCR_BACKEND" default:"http" help:"http or gemini"`
	OcrApiAddr     string        `arg:"--ocr-api-addr,env:OCR_API_ADDR"`
	OcrApiCAPath   string        `arg:"--ocr-api-ca-path,env:OCR_API_CA_PATH"`
	RateLimit      float64       `arg:"--rate-limit,env:OCR_RATE_LIMIT" help:"max requests per second to the OCR API (0 = unlimited)"`
	GeminiApiKey   string        `arg:"--gemini-api-key,env:GEMINI_API_KEY"`
	GeminiModel    string        `arg:"--gemini-model,env:GEMINI_MODEL"`
	MaxRetries     int           `arg:"--max-retries,env:OCR_MAX_RETRIES" default:"2"`
	AttemptTimeout time.Duration `arg:"--attempt-timeout,env:OCR_ATTEMPT_TIMEOUT" default:"60s"`
}

func (a ExtractionArgs) retryPolicy() extraction.RetryPolicy {
	p := extraction.DefaultRetryPolicy()
	if a.MaxRetries >= 0 {
		p.MaxRetries = a.MaxRetries
	}
	if a.AttemptTimeout > 0 {
		p.AttemptTimeout = a.AttemptTimeout
	}
	return p
}

// BuildExtractor returns the configured backend wrapped with retries, and a
// function releasing its resources.
func BuildExtractor(ctx context.Context, a ExtractionArgs) (*extraction.Retrying, func(), error) {
	switch a.Backend {
	case BackendHttp, "":
		var opts []ocrclient.Option
		if a.OcrApiCAPath != "" {
			rt, err := caroundtripper.New(a.OcrApiCAPath)
			if err != nil {
				return nil, nil, err
			}
			opts = append(opts, ocrclient.WithHttpTransport(rt))
		}
		if a.RateLimit > 0 {
			opts = append(opts, ocrclient.WithRateLimit(a.RateLimit, 1))
		}
		c, err := ocrclient.New(a.OcrApiAddr, opts...)
		if err != nil {
			return nil, nil, err
		}
		return extraction.WithRetry(c, a.retryPolicy()), func() {}, nil
	case BackendGemini:
		e, err := gemini.New(ctx, a.GeminiApiKey, a.GeminiModel)
		if err != nil {
			return nil, nil, err
		}
		return extraction.WithRetry(e, a.retryPolicy()), func() { _ = e.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown extraction backend %q", a.Backend)
}
