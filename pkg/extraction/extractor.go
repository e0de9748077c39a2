// Package extraction defines the boundary to the external OCR/AI service.
package extraction

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-invoices/pkg/models"
)

var log = logrus.StandardLogger().WithField("package", "extraction")

// Extractor submits a validated document to an extraction service. It may
// return zero, one or many responses (multi-page or multi-candidate output).
// Failures are reported as *ocrerrors.Error.
type Extractor interface {
	Extract(ctx context.Context, doc *models.RawDocument) ([]models.OcrResponse, error)
}

type HealthChecker interface {
	Healthz(ctx context.Context) (bool, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, doc *models.RawDocument) ([]models.OcrResponse, error)

func (f ExtractorFunc) Extract(ctx context.Context, doc *models.RawDocument) ([]models.OcrResponse, error) {
	return f(ctx, doc)
}
