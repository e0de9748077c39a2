package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/odi-invoices/pkg/extraction"
	"github.com/denysvitali/odi-invoices/pkg/intake"
	"github.com/denysvitali/odi-invoices/pkg/models"
	"github.com/denysvitali/odi-invoices/pkg/ocrerrors"
	"github.com/denysvitali/odi-invoices/pkg/pipeline"
)

func TestMain(m *testing.M) {
	logrus.SetLevel(logrus.DebugLevel)
	m.Run()
}

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func jpegUpload(size int) intake.Upload {
	data := make([]byte, size)
	copy(data, jpegHeader)
	return intake.Upload{Body: bytes.NewReader(data), FileName: "facture.jpg", DeclaredType: "image/jpeg"}
}

type fakeExtractor struct {
	calls atomic.Int32
	fn    func(ctx context.Context, n int32) ([]models.OcrResponse, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, doc *models.RawDocument) ([]models.OcrResponse, error) {
	return f.fn(ctx, f.calls.Add(1))
}

func fastRetry(inner extraction.Extractor) extraction.Extractor {
	return extraction.WithRetry(inner, extraction.RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		AttemptTimeout: 50 * time.Millisecond,
	})
}

var fullInvoice = []models.OcrResponse{{Output: models.OcrOutput{
	"Fournisseur":       "Acme SA",
	"Numéro de facture": "F-1",
	"Montant TVA":       "19.00",
	"Montant TTC":       "119.00",
}}}

func TestProcessFullInvoice(t *testing.T) {
	ex := &fakeExtractor{fn: func(ctx context.Context, n int32) ([]models.OcrResponse, error) {
		return fullInvoice, nil
	}}
	var milestones []int
	p := pipeline.New(nil, fastRetry(ex), nil)

	res, err := p.Process(context.Background(), jpegUpload(2<<20), func(v int) { milestones = append(milestones, v) })
	require.NoError(t, err)
	assert.Equal(t, "Acme SA", res.Supplier)
	assert.Equal(t, "19.00", res.VatAmount)
	assert.Equal(t, models.DocumentTypeInvoice, res.DocumentType)
	assert.Equal(t, "image/jpeg", res.FileType)
	assert.EqualValues(t, 2<<20, res.FileSize)
	assert.Equal(t, []int{10, 30, 80, 100}, milestones)
}

func TestProcessMissingInvoiceNumber(t *testing.T) {
	ex := &fakeExtractor{fn: func(ctx context.Context, n int32) ([]models.OcrResponse, error) {
		return []models.OcrResponse{{Output: models.OcrOutput{"Fournisseur": "Acme SA"}}}, nil
	}}
	res, err := pipeline.New(nil, ex, nil).Process(context.Background(), jpegUpload(1024), nil)
	require.NoError(t, err)
	assert.Equal(t, "", res.InvoiceNumber)
	assert.Equal(t, models.DocumentTypeUnclassified, res.DocumentType)
}

type endlessReader struct{ n atomic.Int64 }

func (r *endlessReader) Read(p []byte) (int, error) {
	if r.n.Load() == 0 && len(p) >= len(jpegHeader) {
		copy(p, jpegHeader)
		r.n.Add(int64(len(p)))
		return len(p), nil
	}
	r.n.Add(int64(len(p)))
	return len(p), nil
}

func TestProcessTooLargeNeverExtracts(t *testing.T) {
	ex := &fakeExtractor{fn: func(ctx context.Context, n int32) ([]models.OcrResponse, error) {
		return fullInvoice, nil
	}}
	body := io.LimitReader(&endlessReader{}, 60<<20)

	res, err := pipeline.New(nil, ex, nil).Process(context.Background(), intake.Upload{Body: body, FileName: "big.jpg"}, nil)
	assert.Nil(t, res)
	assert.True(t, ocrerrors.IsKind(err, ocrerrors.KindValidation))
	assert.ErrorIs(t, err, ocrerrors.ErrTooLarge)
	assert.Equal(t, int32(0), ex.calls.Load())
}

func TestProcessTimeoutsThenSuccess(t *testing.T) {
	ex := &fakeExtractor{fn: func(ctx context.Context, n int32) ([]models.OcrResponse, error) {
		if n <= 2 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return fullInvoice, nil
	}}
	res, err := pipeline.New(nil, fastRetry(ex), nil).Process(context.Background(), jpegUpload(1024), nil)
	require.NoError(t, err)
	assert.Equal(t, "Acme SA", res.Supplier)
	assert.Equal(t, int32(3), ex.calls.Load())
}

func TestProcessPermanentRejection(t *testing.T) {
	ex := &fakeExtractor{fn: func(ctx context.Context, n int32) ([]models.OcrResponse, error) {
		return nil, ocrerrors.Permanent(nil, "document unreadable")
	}}
	res, err := pipeline.New(nil, fastRetry(ex), nil).Process(context.Background(), jpegUpload(1024), nil)
	assert.Nil(t, res)
	e, ok := ocrerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, ocrerrors.KindExtraction, e.Kind)
	assert.False(t, e.Transient)
	assert.Equal(t, int32(1), ex.calls.Load())
}

func TestProcessUntypedErrorIsInternal(t *testing.T) {
	ex := &fakeExtractor{fn: func(ctx context.Context, n int32) ([]models.OcrResponse, error) {
		return nil, errors.New("boom")
	}}
	_, err := pipeline.New(nil, ex, nil).Process(context.Background(), jpegUpload(1024), nil)
	assert.True(t, ocrerrors.IsKind(err, ocrerrors.KindInternal))
}

func TestProcessDeadline(t *testing.T) {
	ex := &fakeExtractor{fn: func(ctx context.Context, n int32) ([]models.OcrResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	p := pipeline.New(nil, extraction.WithRetry(ex, extraction.RetryPolicy{
		MaxRetries:     5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		AttemptTimeout: time.Minute,
	}), nil, pipeline.WithDeadline(20*time.Millisecond))

	start := time.Now()
	_, err := p.Process(context.Background(), jpegUpload(1024), nil)
	assert.True(t, ocrerrors.IsTransient(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(1), ex.calls.Load())
}

func TestProcessConcurrentUploadsIndependent(t *testing.T) {
	ex := &fakeExtractor{fn: func(ctx context.Context, n int32) ([]models.OcrResponse, error) {
		return []models.OcrResponse{{Output: models.OcrOutput{"Fournisseur": "Acme SA"}}}, nil
	}}
	p := pipeline.New(nil, ex, nil)

	results := make(chan *models.ProcessedOcrResult, 8)
	for i := 0; i < 8; i++ {
		go func() {
			res, err := p.Process(context.Background(), jpegUpload(4096), nil)
			assert.NoError(t, err)
			results <- res
		}()
	}
	seen := map[*models.ProcessedOcrResult]bool{}
	for i := 0; i < 8; i++ {
		res := <-results
		require.NotNil(t, res)
		seen[res] = true
	}
	assert.Len(t, seen, 8)
}
