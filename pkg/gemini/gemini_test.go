package gemini

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/denysvitali/odi-invoices/pkg/models"
	"github.com/denysvitali/odi-invoices/pkg/ocrerrors"
)

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `[{"output":{}}]`, stripCodeFences("```json\n[{\"output\":{}}]\n```"))
	assert.Equal(t, `[]`, stripCodeFences("```\n[]\n```"))
	assert.Equal(t, `{"output":{}}`, stripCodeFences(`  {"output":{}} `))
}

func TestFirstText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("[{\"output\":"), genai.Text("{}}]")}}},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("ignored")}}},
		},
	}
	assert.Equal(t, `[{"output":{}}]`, firstText(resp))
	assert.Equal(t, "", firstText(nil))
	assert.Equal(t, "", firstText(&genai.GenerateContentResponse{}))
}

func TestClassify(t *testing.T) {
	for name, tc := range map[string]struct {
		err       error
		kind      ocrerrors.Kind
		transient bool
	}{
		"rate limited":  {&googleapi.Error{Code: http.StatusTooManyRequests}, ocrerrors.KindExtraction, true},
		"server error":  {&googleapi.Error{Code: http.StatusInternalServerError}, ocrerrors.KindExtraction, true},
		"bad request":   {&googleapi.Error{Code: http.StatusBadRequest}, ocrerrors.KindExtraction, false},
		"unavailable":   {status.Error(codes.Unavailable, "try later"), ocrerrors.KindExtraction, true},
		"invalid":       {status.Error(codes.InvalidArgument, "bad image"), ocrerrors.KindExtraction, false},
		"deadline":      {context.DeadlineExceeded, ocrerrors.KindExtraction, true},
		"blocked":       {&genai.BlockedError{}, ocrerrors.KindExtraction, false},
		"plain network": {errors.New("connection reset"), ocrerrors.KindExtraction, true},
	} {
		t.Run(name, func(t *testing.T) {
			e, ok := ocrerrors.As(classify(tc.err))
			require.True(t, ok)
			assert.Equal(t, tc.kind, e.Kind)
			assert.Equal(t, tc.transient, e.Transient)
		})
	}
}

func TestExtractLive(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set, skipping test")
	}
	data, err := os.ReadFile("../../resources/invoice-1.jpg")
	if err != nil {
		t.Skipf("no sample invoice: %v", err)
	}
	e, err := New(context.Background(), apiKey, os.Getenv("GEMINI_MODEL"))
	require.NoError(t, err)
	defer e.Close()

	responses, err := e.Extract(context.Background(), &models.RawDocument{
		Data: data, MediaType: "image/jpeg", FileName: "invoice-1.jpg", Size: int64(len(data)), Pages: 1,
	})
	require.NoError(t, err)
	t.Logf("responses: %+v", responses)
}
