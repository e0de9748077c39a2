// Package pipeline runs one uploaded document through intake, extraction
// and normalization.
package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-invoices/pkg/extraction"
	"github.com/denysvitali/odi-invoices/pkg/intake"
	"github.com/denysvitali/odi-invoices/pkg/models"
	"github.com/denysvitali/odi-invoices/pkg/normalizer"
	"github.com/denysvitali/odi-invoices/pkg/ocrerrors"
)

const DefaultDeadline = 5 * time.Minute

// Progress milestones reported through ProgressFunc.
const (
	ProgressAccepted   = 10
	ProgressExtracting = 30
	ProgressExtracted  = 80
	ProgressDone       = 100
)

var log = logrus.StandardLogger().WithField("package", "pipeline")

type ProgressFunc func(progress int)

type Pipeline struct {
	intake     *intake.Intake
	extractor  extraction.Extractor
	normalizer *normalizer.Normalizer
	deadline   time.Duration
}

type Option func(*Pipeline)

// WithDeadline bounds the whole processing of one document, retries
// included.
func WithDeadline(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.deadline = d
		}
	}
}

func New(in *intake.Intake, extractor extraction.Extractor, norm *normalizer.Normalizer, opts ...Option) *Pipeline {
	if in == nil {
		in = intake.New()
	}
	if norm == nil {
		norm = normalizer.New(nil)
	}
	p := &Pipeline{
		intake:     in,
		extractor:  extractor,
		normalizer: norm,
		deadline:   DefaultDeadline,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Pipeline) Intake() *intake.Intake {
	return p.intake
}

func (p *Pipeline) Normalizer() *normalizer.Normalizer {
	return p.normalizer
}

// Healthz reports the extraction backend health when it exposes one.
func (p *Pipeline) Healthz(ctx context.Context) (bool, error) {
	if hc, ok := p.extractor.(extraction.HealthChecker); ok {
		return hc.Healthz(ctx)
	}
	return true, nil
}

// Process accepts, extracts and normalizes one upload. The returned error is
// always an *ocrerrors.Error and the result is nil whenever err is not.
func (p *Pipeline) Process(ctx context.Context, u intake.Upload, progress ProgressFunc) (*models.ProcessedOcrResult, error) {
	doc, err := p.Accept(ctx, u)
	if err != nil {
		return nil, err
	}
	report(progress, ProgressAccepted)
	return p.ProcessDocument(ctx, doc, progress)
}

// Accept runs the intake step only.
func (p *Pipeline) Accept(ctx context.Context, u intake.Upload) (*models.RawDocument, error) {
	doc, err := p.intake.Accept(ctx, u)
	if err != nil {
		return nil, typed(err)
	}
	return doc, nil
}

// ProcessDocument extracts and normalizes an already accepted document.
func (p *Pipeline) ProcessDocument(ctx context.Context, doc *models.RawDocument, progress ProgressFunc) (*models.ProcessedOcrResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	start := time.Now()
	report(progress, ProgressExtracting)
	responses, err := p.extractor.Extract(ctx, doc)
	if err != nil {
		log.Warnf("extraction of %s failed after %v: %v", doc, time.Since(start), err)
		return nil, typed(err)
	}
	report(progress, ProgressExtracted)
	log.Debugf("extracted %d response(s) for %s in %v", len(responses), doc, time.Since(start))

	res := p.normalizer.Normalize(doc.FileInfo(), responses)
	report(progress, ProgressDone)
	return res, nil
}

func typed(err error) error {
	if _, ok := ocrerrors.As(err); ok {
		return err
	}
	return ocrerrors.Internal(err, "processing failed")
}

func report(progress ProgressFunc, v int) {
	if progress != nil {
		progress(v)
	}
}
