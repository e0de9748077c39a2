// Package intake validates uploaded documents before they reach the
// extraction service.
package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-invoices/pkg/models"
	"github.com/denysvitali/odi-invoices/pkg/ocrerrors"
)

const (
	DefaultMaxSize int64 = 50 << 20

	sniffLen  = 3072
	chunkSize = 64 << 10
)

var DefaultMediaTypes = []string{
	"image/jpeg",
	"image/png",
	"image/tiff",
	"image/webp",
	"image/heic",
	"application/pdf",
}

var log = logrus.StandardLogger().WithField("package", "intake")

// Upload is a single document as received from the transport.
type Upload struct {
	Body         io.Reader
	FileName     string
	DeclaredType string
	// DeclaredSize is the transport-announced size, or <= 0 when unknown.
	DeclaredSize int64
}

type Intake struct {
	maxSize    int64
	mediaTypes []string
}

type Option func(*Intake)

func WithMaxSize(n int64) Option {
	return func(i *Intake) {
		if n > 0 {
			i.maxSize = n
		}
	}
}

func WithMediaTypes(types ...string) Option {
	return func(i *Intake) {
		i.mediaTypes = types
	}
}

func New(opts ...Option) *Intake {
	i := &Intake{
		maxSize:    DefaultMaxSize,
		mediaTypes: DefaultMediaTypes,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Intake) MaxSize() int64 {
	return i.maxSize
}

// Accept reads the upload and returns a validated RawDocument. The body is
// streamed through a size limit so an oversized upload is rejected as soon
// as the limit is crossed.
func (i *Intake) Accept(ctx context.Context, u Upload) (*models.RawDocument, error) {
	if u.Body == nil {
		return nil, ocrerrors.Validation(nil, "no document provided")
	}
	if u.DeclaredSize > i.maxSize {
		log.Debugf("rejecting %q: declared size %d > %d", u.FileName, u.DeclaredSize, i.maxSize)
		return nil, ocrerrors.Validation(ocrerrors.ErrTooLarge, "%s is %d bytes, limit is %d", displayName(u.FileName), u.DeclaredSize, i.maxSize)
	}

	body := &ctxReader{ctx: ctx, r: u.Body}

	header := make([]byte, sniffLen)
	n, err := io.ReadFull(body, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, readError(ctx, err)
	}
	header = header[:n]
	if n == 0 {
		return nil, ocrerrors.Validation(nil, "%s is empty", displayName(u.FileName))
	}

	detected := mimetype.Detect(header)
	mediaType, ok := i.recognize(detected)
	if !ok {
		log.Debugf("rejecting %q: detected %s, declared %q", u.FileName, detected.String(), u.DeclaredType)
		return nil, ocrerrors.Validation(ocrerrors.ErrUnsupportedType, "%s has type %s", displayName(u.FileName), detected.String())
	}
	if u.DeclaredType != "" && !strings.HasPrefix(u.DeclaredType, mediaType) {
		log.Debugf("%q declared as %q but detected as %s", u.FileName, u.DeclaredType, mediaType)
	}

	buf := bytes.NewBuffer(make([]byte, 0, i.initialCapacity(u.DeclaredSize, n)))
	buf.Write(header)
	if int64(n) == sniffLen {
		limited := io.LimitReader(body, i.maxSize+1-int64(n))
		if _, err := io.CopyBuffer(buf, limited, make([]byte, chunkSize)); err != nil {
			return nil, readError(ctx, err)
		}
	}
	if int64(buf.Len()) > i.maxSize {
		return nil, ocrerrors.Validation(ocrerrors.ErrTooLarge, "%s exceeds %d bytes", displayName(u.FileName), i.maxSize)
	}

	doc := &models.RawDocument{
		Data:      buf.Bytes(),
		MediaType: mediaType,
		FileName:  u.FileName,
		Size:      int64(buf.Len()),
		Pages:     1,
	}

	if mediaType == "application/pdf" {
		pages, err := pageCount(doc.Data)
		if err != nil {
			return nil, ocrerrors.Validation(err, "%s is not a readable PDF", displayName(u.FileName))
		}
		doc.Pages = pages
	}

	log.Debugf("accepted %s", doc)
	return doc, nil
}

func (i *Intake) recognize(m *mimetype.MIME) (string, bool) {
	for _, t := range i.mediaTypes {
		if m.Is(t) {
			return t, true
		}
	}
	return "", false
}

func (i *Intake) initialCapacity(declared int64, n int) int {
	if declared > 0 && declared <= i.maxSize {
		return int(declared)
	}
	return n
}

func readError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return ocrerrors.Validation(ocrerrors.ErrTooLarge, "request body exceeds %d bytes", tooLarge.Limit)
	}
	return ocrerrors.Validation(err, "unable to read document")
}

func displayName(name string) string {
	if name == "" {
		return "document"
	}
	return fmt.Sprintf("%q", name)
}

// ctxReader stops a long upload as soon as the request context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
