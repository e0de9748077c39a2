package intake_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/odi-invoices/pkg/intake"
	"github.com/denysvitali/odi-invoices/pkg/ocrerrors"
)

func TestMain(m *testing.M) {
	logrus.StandardLogger().SetLevel(logrus.DebugLevel)
	m.Run()
}

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func jpeg(size int) []byte {
	b := make([]byte, size)
	copy(b, jpegHeader)
	return b
}

func TestAcceptJpeg(t *testing.T) {
	i := intake.New()
	data := jpeg(2 << 20)
	doc, err := i.Accept(context.Background(), intake.Upload{
		Body:         bytes.NewReader(data),
		FileName:     "invoice.jpg",
		DeclaredType: "image/jpeg",
	})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", doc.MediaType)
	assert.Equal(t, int64(len(data)), doc.Size)
	assert.Equal(t, 1, doc.Pages)
	assert.Equal(t, data, doc.Data)
}

func TestAcceptSmallFile(t *testing.T) {
	i := intake.New()
	doc, err := i.Accept(context.Background(), intake.Upload{Body: bytes.NewReader(jpeg(100)), FileName: "tiny.jpg"})
	require.NoError(t, err)
	assert.Equal(t, int64(100), doc.Size)
}

func TestRejectDeclaredTooLarge(t *testing.T) {
	i := intake.New()
	r := &countingReader{r: bytes.NewReader(jpeg(10))}
	_, err := i.Accept(context.Background(), intake.Upload{
		Body:         r,
		FileName:     "huge.jpg",
		DeclaredSize: 60 << 20,
	})
	assert.True(t, ocrerrors.IsKind(err, ocrerrors.KindValidation))
	assert.ErrorIs(t, err, ocrerrors.ErrTooLarge)
	assert.Zero(t, r.n, "body must not be read")
}

func TestRejectStreamTooLarge(t *testing.T) {
	i := intake.New(intake.WithMaxSize(8 << 10))
	_, err := i.Accept(context.Background(), intake.Upload{
		Body:     bytes.NewReader(jpeg(8<<10 + 1)),
		FileName: "big.jpg",
	})
	assert.True(t, ocrerrors.IsKind(err, ocrerrors.KindValidation))
	assert.ErrorIs(t, err, ocrerrors.ErrTooLarge)

	doc, err := i.Accept(context.Background(), intake.Upload{
		Body:     bytes.NewReader(jpeg(8 << 10)),
		FileName: "exact.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8<<10), doc.Size)
}

func TestStopsReadingAtLimit(t *testing.T) {
	i := intake.New(intake.WithMaxSize(16 << 10))
	r := &countingReader{r: io.MultiReader(bytes.NewReader(jpegHeader), io.LimitReader(zeroReader{}, 1<<30))}
	_, err := i.Accept(context.Background(), intake.Upload{Body: r, FileName: "stream.jpg"})
	assert.ErrorIs(t, err, ocrerrors.ErrTooLarge)
	assert.LessOrEqual(t, r.n, int64(16<<10+1))
}

func TestRejectUnsupportedType(t *testing.T) {
	i := intake.New()
	_, err := i.Accept(context.Background(), intake.Upload{
		Body:         strings.NewReader("just some text, not an invoice scan"),
		FileName:     "notes.txt",
		DeclaredType: "image/jpeg",
	})
	assert.True(t, ocrerrors.IsKind(err, ocrerrors.KindValidation))
	assert.ErrorIs(t, err, ocrerrors.ErrUnsupportedType)
}

func TestRejectEmpty(t *testing.T) {
	i := intake.New()
	_, err := i.Accept(context.Background(), intake.Upload{Body: bytes.NewReader(nil), FileName: "empty.pdf"})
	assert.True(t, ocrerrors.IsKind(err, ocrerrors.KindValidation))

	_, err = i.Accept(context.Background(), intake.Upload{FileName: "missing"})
	assert.True(t, ocrerrors.IsKind(err, ocrerrors.KindValidation))
}

func TestRejectBrokenPdf(t *testing.T) {
	i := intake.New()
	_, err := i.Accept(context.Background(), intake.Upload{
		Body:     strings.NewReader("%PDF-1.7\nthis is not really a pdf\n"),
		FileName: "broken.pdf",
	})
	assert.True(t, ocrerrors.IsKind(err, ocrerrors.KindValidation))
}

func TestCancelledContext(t *testing.T) {
	i := intake.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := i.Accept(ctx, intake.Upload{Body: bytes.NewReader(jpeg(1024)), FileName: "late.jpg"})
	assert.ErrorIs(t, err, context.Canceled)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
