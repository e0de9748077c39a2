package extraction

import (
	"context"
	"errors"
	"time"

	"github.com/denysvitali/odi-invoices/pkg/models"
	"github.com/denysvitali/odi-invoices/pkg/ocrerrors"
)

type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// AttemptTimeout bounds a single call to the extraction service.
	AttemptTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		AttemptTimeout: 60 * time.Second,
	}
}

// Backoff returns the wait before retry number n (starting at 1).
func (p RetryPolicy) Backoff(n int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

type Retrying struct {
	inner  Extractor
	policy RetryPolicy
}

var _ Extractor = (*Retrying)(nil)

func WithRetry(inner Extractor, policy RetryPolicy) *Retrying {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &Retrying{inner: inner, policy: policy}
}

func (r *Retrying) Extract(ctx context.Context, doc *models.RawDocument) ([]models.OcrResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := r.policy.Backoff(attempt)
			log.Debugf("retrying %s in %s (retry %d/%d): %v", doc, wait, attempt, r.policy.MaxRetries, lastErr)
			if err := sleep(ctx, wait); err != nil {
				return nil, cancelled(err, lastErr)
			}
		}

		responses, err := r.attempt(ctx, doc)
		if err == nil {
			if attempt > 0 {
				log.Infof("extraction of %s succeeded after %d attempts", doc, attempt+1)
			}
			return responses, nil
		}
		if ctx.Err() != nil {
			return nil, cancelled(ctx.Err(), err)
		}
		if !ocrerrors.IsTransient(err) {
			return nil, err
		}
		log.Warnf("attempt %d for %s failed: %v", attempt+1, doc, err)
		lastErr = err
	}
	return nil, lastErr
}

func (r *Retrying) attempt(ctx context.Context, doc *models.RawDocument) ([]models.OcrResponse, error) {
	attemptCtx := ctx
	if r.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, r.policy.AttemptTimeout)
		defer cancel()
	}

	responses, err := r.inner.Extract(attemptCtx, doc)
	if err == nil {
		return responses, nil
	}
	// The attempt deadline fired but the caller is still waiting.
	if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return nil, ocrerrors.Transient(context.DeadlineExceeded, "extraction timed out after %s", r.policy.AttemptTimeout)
	}
	if _, ok := ocrerrors.As(err); !ok {
		return nil, ocrerrors.Internal(err, "extraction failed")
	}
	return nil, err
}

func (r *Retrying) Healthz(ctx context.Context) (bool, error) {
	if hc, ok := r.inner.(HealthChecker); ok {
		return hc.Healthz(ctx)
	}
	return true, nil
}

func cancelled(ctxErr error, last error) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return ocrerrors.Transient(ctxErr, "document deadline exceeded")
	}
	if last != nil {
		log.Debugf("abandoning extraction after cancellation, last error: %v", last)
	}
	return ocrerrors.Transient(ctxErr, "extraction cancelled")
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
