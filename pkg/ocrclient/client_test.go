package ocrclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/h2non/gock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/odi-invoices/pkg/extraction"
	"github.com/denysvitali/odi-invoices/pkg/models"
	"github.com/denysvitali/odi-invoices/pkg/ocrclient"
	"github.com/denysvitali/odi-invoices/pkg/ocrclient/caroundtripper"
	"github.com/denysvitali/odi-invoices/pkg/ocrerrors"
)

const ocrApi = "https://ocr-api.lan:8443"

func TestMain(m *testing.M) {
	logrus.StandardLogger().SetLevel(logrus.DebugLevel)
	os.Exit(m.Run())
}

func getClient(t *testing.T) *ocrclient.Client {
	c, err := ocrclient.New(ocrApi)
	if err != nil {
		t.Fatalf("unable to create client: %v", err)
	}
	return c
}

var doc = &models.RawDocument{
	Data:      []byte{0xFF, 0xD8, 0xFF, 0xE0},
	MediaType: "image/jpeg",
	FileName:  "receipt-1.jpg",
	Size:      4,
	Pages:     1,
}

func TestNewRejectsScheme(t *testing.T) {
	_, err := ocrclient.New("ftp://ocr-api.lan")
	assert.Error(t, err)
}

func TestExtract(t *testing.T) {
	defer gock.Off()
	gock.New(ocrApi).
		Post("/api/v1/ocr").
		MatchHeader("Content-Type", "image/jpeg").
		MatchHeader("X-File-Name", "receipt-1.jpg").
		Reply(http.StatusOK).
		JSON([]map[string]any{
			{"output": map[string]any{"Fournisseur": "Acme SA", "Montant TVA": "19.00"}},
			{"output": map[string]any{"Numéro de facture": "F-2024-001"}},
		})

	responses, err := getClient(t).Extract(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, responses, 2)
	assert.Equal(t, "Acme SA", responses[0].Output["Fournisseur"])
	assert.Equal(t, "F-2024-001", responses[1].Output["Numéro de facture"])
	assert.True(t, gock.IsDone())
}

func TestExtractStatusClassification(t *testing.T) {
	for _, tc := range []struct {
		status    int
		transient bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusRequestTimeout, true},
		{http.StatusBadRequest, false},
		{http.StatusUnsupportedMediaType, false},
		{http.StatusUnprocessableEntity, false},
	} {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			defer gock.Off()
			gock.New(ocrApi).
				Post("/api/v1/ocr").
				Reply(tc.status).
				JSON(map[string]string{"error": "document is unreadable"})

			_, err := getClient(t).Extract(context.Background(), doc)
			e, ok := ocrerrors.As(err)
			require.True(t, ok)
			assert.Equal(t, ocrerrors.KindExtraction, e.Kind)
			assert.Equal(t, tc.transient, e.Transient)
			assert.ErrorContains(t, err, "document is unreadable")
		})
	}
}

func TestExtractTransportError(t *testing.T) {
	defer gock.Off()
	gock.New(ocrApi).
		Post("/api/v1/ocr").
		ReplyError(errors.New("connection reset by peer"))

	_, err := getClient(t).Extract(context.Background(), doc)
	assert.True(t, ocrerrors.IsTransient(err))
}

func TestExtractMalformed(t *testing.T) {
	defer gock.Off()
	gock.New(ocrApi).
		Post("/api/v1/ocr").
		Reply(http.StatusOK).
		BodyString(`{"text": "no envelope here"}`)

	_, err := getClient(t).Extract(context.Background(), doc)
	e, ok := ocrerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, ocrerrors.KindInternal, e.Kind)
	assert.Equal(t, `{"text": "no envelope here"}`, string(e.Raw))
}

// Two timeouts followed by a success stay within the retry budget.
func TestExtractRetriesTimeouts(t *testing.T) {
	defer gock.Off()
	gock.New(ocrApi).Post("/api/v1/ocr").ReplyError(context.DeadlineExceeded)
	gock.New(ocrApi).Post("/api/v1/ocr").ReplyError(context.DeadlineExceeded)
	gock.New(ocrApi).
		Post("/api/v1/ocr").
		Reply(http.StatusOK).
		JSON([]map[string]any{{"output": map[string]any{"Fournisseur": "Acme SA"}}})

	r := extraction.WithRetry(getClient(t), extraction.RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		AttemptTimeout: time.Second,
	})
	responses, err := r.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "Acme SA", responses[0].Output["Fournisseur"])
	assert.True(t, gock.IsDone(), "expected exactly three attempts")
}

func TestExtractPermanentSingleAttempt(t *testing.T) {
	defer gock.Off()
	gock.New(ocrApi).
		Post("/api/v1/ocr").
		Reply(http.StatusUnprocessableEntity).
		JSON(map[string]string{"error": "unsupported document"})
	gock.New(ocrApi).
		Post("/api/v1/ocr").
		Reply(http.StatusOK).
		JSON([]map[string]any{})

	r := extraction.WithRetry(getClient(t), extraction.RetryPolicy{MaxRetries: 2, InitialBackoff: time.Millisecond})
	_, err := r.Extract(context.Background(), doc)
	e, ok := ocrerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, ocrerrors.KindExtraction, e.Kind)
	assert.False(t, e.Transient)
	assert.False(t, gock.IsDone(), "second mock must not be consumed")
}

func TestHealthz(t *testing.T) {
	defer gock.Off()
	gock.New(ocrApi).Get("/healthz").Reply(http.StatusOK).BodyString(`{}`)

	healthy, err := getClient(t).Healthz(context.Background())
	assert.Nil(t, err)
	assert.True(t, healthy)
}

func TestClientLive(t *testing.T) {
	ocrApiAddr := os.Getenv("OCR_API_ADDR")
	if ocrApiAddr == "" {
		t.Skip("OCR_API_ADDR not set, skipping test")
	}
	var opts []ocrclient.Option
	if caPath := os.Getenv("OCR_API_CA_PATH"); caPath != "" {
		rt, err := caroundtripper.New(caPath)
		require.NoError(t, err)
		opts = append(opts, ocrclient.WithHttpTransport(rt))
	}
	c, err := ocrclient.New(ocrApiAddr, opts...)
	require.NoError(t, err)

	data, err := os.ReadFile("../../resources/invoice-1.jpg")
	if err != nil {
		t.Skipf("no sample invoice: %v", err)
	}
	responses, err := c.Extract(context.Background(), &models.RawDocument{
		Data: data, MediaType: "image/jpeg", FileName: "invoice-1.jpg", Size: int64(len(data)),
	})
	require.NoError(t, err)
	out, _ := json.Marshal(responses)
	t.Logf("responses: %s", out)
}
