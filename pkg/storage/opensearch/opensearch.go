// Package opensearch stores saved results as documents of an OpenSearch
// index and exposes full-text search over them.
package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-invoices/pkg/models"
	"github.com/denysvitali/odi-invoices/pkg/storage/model"
)

var log = logrus.StandardLogger().WithField("package", "storage/opensearch")

const (
	DefaultIndex = "invoices"
	listSize     = 500
)

var (
	_ model.RWStorage = (*Storage)(nil)
	_ model.Searcher  = (*Storage)(nil)
)

type Config struct {
	Addr               string
	Username           string
	Password           string
	InsecureSkipVerify bool
	Index              string
	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

type Storage struct {
	client *opensearch.Client
	index  string
}

func New(ctx context.Context, config Config) (*Storage, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("opensearch address is required")
	}
	if config.Index == "" {
		config.Index = DefaultIndex
	}

	transport := config.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if config.InsecureSkipVerify {
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		transport = t
	}

	c, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{config.Addr},
		Username:  config.Username,
		Password:  config.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, err
	}

	s := &Storage{client: c, index: config.Index}
	if err := s.ping(ctx); err != nil {
		return nil, err
	}
	if err := s.createIndex(ctx); err != nil {
		return nil, fmt.Errorf("unable to create opensearch index: %w", err)
	}
	return s, nil
}

func (s *Storage) ping(ctx context.Context) error {
	res, err := opensearchapi.PingRequest{}.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("unable to ping opensearch: %s", res.Status())
	}
	return nil
}

func (s *Storage) createIndex(ctx context.Context) error {
	req := opensearchapi.IndicesCreateRequest{Index: s.index}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusBadRequest {
		// Index already exists
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("unexpected status %s", res.Status())
	}
	return nil
}

func (s *Storage) Store(ctx context.Context, result *models.SavedResult) error {
	if !model.ValidId(result.Id) {
		return fmt.Errorf("invalid result id %q", result.Id)
	}
	body, err := json.Marshal(result)
	if err != nil {
		return err
	}

	log.Debugf("indexing %s", result.Id)
	req := opensearchapi.IndexRequest{
		Index:      s.index,
		DocumentID: result.Id,
		Body:       bytes.NewReader(body),
		OpType:     "index",
		Refresh:    "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("opensearch returned an invalid status %s: %s", res.Status(), decodeError(res.Body))
	}
	return nil
}

type document struct {
	Found  bool               `json:"found"`
	Source models.SavedResult `json:"_source"`
}

func (s *Storage) Retrieve(ctx context.Context, id string) (*models.SavedResult, error) {
	if !model.ValidId(id) {
		return nil, os.ErrNotExist
	}
	res, err := opensearchapi.GetRequest{Index: s.index, DocumentID: id}.Do(ctx, s.client)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, os.ErrNotExist
	}
	if res.IsError() {
		return nil, fmt.Errorf("unable to get %s: %s", id, res.Status())
	}

	var doc document
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("unable to decode document: %w", err)
	}
	if !doc.Found {
		return nil, os.ErrNotExist
	}
	return &doc.Source, nil
}

func (s *Storage) List(ctx context.Context) ([]models.SavedResult, error) {
	return s.search(ctx, map[string]any{
		"size":  listSize,
		"query": map[string]any{"match_all": map[string]any{}},
		"sort":  []any{map[string]any{"savedAt": map[string]any{"order": "desc"}}},
	})
}

// Search runs a query_string query over the stored results.
func (s *Storage) Search(ctx context.Context, query string, size int) ([]models.SavedResult, error) {
	if size <= 0 || size > listSize {
		size = 50
	}
	return s.search(ctx, map[string]any{
		"size": size,
		"query": map[string]any{
			"query_string": map[string]any{
				"query": query,
			},
		},
	})
}

func (s *Storage) search(ctx context.Context, body map[string]any) ([]models.SavedResult, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req := opensearchapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(jsonBody),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("unable to perform search: %s: %s", res.Status(), decodeError(res.Body))
	}

	var hits struct {
		Hits struct {
			Hits []struct {
				Source models.SavedResult `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&hits); err != nil {
		return nil, fmt.Errorf("unable to decode search results: %w", err)
	}
	results := make([]models.SavedResult, 0, len(hits.Hits.Hits))
	for _, h := range hits.Hits.Hits {
		results = append(results, h.Source)
	}
	return results, nil
}

func decodeError(body io.Reader) string {
	var errorMessage struct {
		Error json.RawMessage `json:"error"`
	}
	_ = json.NewDecoder(body).Decode(&errorMessage)
	return string(errorMessage.Error)
}
