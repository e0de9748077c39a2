// Package gemini implements extraction.Extractor on top of the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/denysvitali/odi-invoices/pkg/extraction"
	"github.com/denysvitali/odi-invoices/pkg/models"
	"github.com/denysvitali/odi-invoices/pkg/ocrerrors"
)

const DefaultModel = "gemini-2.5-flash"

var log = logrus.StandardLogger().WithField("package", "gemini")

var _ extraction.Extractor = (*Engine)(nil)

type Engine struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, apiKey string, model string) (*Engine, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini API key is empty")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Engine{client: cl, model: model}, nil
}

func (e *Engine) Close() error {
	return e.client.Close()
}

func (e *Engine) Extract(ctx context.Context, doc *models.RawDocument) ([]models.OcrResponse, error) {
	m := e.client.GenerativeModel(e.model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	log.Debugf("sending %s to %s", doc, e.model)
	resp, err := m.GenerateContent(ctx,
		genai.Text(userPrompt(doc)),
		genai.Blob{MIMEType: doc.MediaType, Data: doc.Data},
	)
	if err != nil {
		return nil, classify(err)
	}

	txt := firstText(resp)
	if txt == "" {
		return nil, ocrerrors.Permanent(nil, "gemini returned no content for %s", doc.FileName)
	}
	responses, err := extraction.DecodeResponses([]byte(stripCodeFences(txt)))
	if err != nil {
		log.Warnf("malformed gemini output for %s: %.512s", doc, txt)
		return nil, err
	}
	return responses, nil
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ocrerrors.Transient(err, "gemini request interrupted")
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return ocrerrors.Permanent(err, "gemini refused the document")
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusTooManyRequests || gerr.Code == http.StatusRequestTimeout || gerr.Code >= 500 {
			return ocrerrors.Transient(err, "gemini returned %d", gerr.Code)
		}
		return ocrerrors.Permanent(err, "gemini returned %d", gerr.Code)
	}

	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded,
		codes.Aborted, codes.Internal, codes.Unknown:
		return ocrerrors.Transient(err, "gemini request failed")
	default:
		return ocrerrors.Permanent(err, "gemini rejected the request")
	}
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if sb.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(sb.String())
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func ptrFloat32(f float32) *float32 {
	return &f
}
