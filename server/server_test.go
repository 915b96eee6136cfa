package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/scholarquery"
	"github.com/poiesic/scholarquery/ai"
	"github.com/poiesic/scholarquery/ai/mock"
	"github.com/poiesic/scholarquery/config"
)

const testDim = 32

func newTestServer(t *testing.T, generator *mock.MockGenerator) *Server {
	t.Helper()

	embedder := mock.NewMockEmbedder()
	embedder.Dim = testDim
	if generator == nil {
		generator = mock.NewMockGenerator()
	}
	provider := mock.NewMockProviderWithServices(embedder, generator)

	cfg := config.Default()
	cfg.Storage.InMemory = true
	cfg.AI.EmbeddingDim = testDim

	engine, err := scholarquery.NewEngine(cfg, scholarquery.WithAIProvider(provider))
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	return NewServer(engine, cfg.Server)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func seedCorpus(t *testing.T, handler http.Handler) {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/documents", IngestRequest{
		Documents: []DocumentRequest{
			{Id: "cats-1", Text: "cats are small felines with sharp retractable claws"},
			{Id: "cats-2", Text: "felines hunt at night and groom their fur daily"},
			{Id: "stocks-1", Text: "stock markets rallied on strong earnings reports"},
			{Id: "stocks-2", Text: "bond yields fell as markets priced in rate cuts"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 4, decode[IngestResponse](t, rec).Ingested)
}

func TestQueryEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	handler := srv.Router()
	seedCorpus(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/query", QueryRequest{
		Text: "stock markets rallied on strong earnings reports",
		TopK: 2,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[QueryResponse](t, rec)
	assert.NotEmpty(t, resp.Id)
	require.Len(t, resp.Hits, 2)
	assert.Equal(t, "stocks-1", resp.Hits[0].DocId)
	assert.Nil(t, resp.Answer)
}

func TestQueryEndpoint_Validation(t *testing.T) {
	srv := newTestServer(t, nil)
	handler := srv.Router()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/query", QueryRequest{Text: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestQueryEndpoint_RAG(t *testing.T) {
	srv := newTestServer(t, nil)
	handler := srv.Router()
	seedCorpus(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/query", QueryRequest{
		Text:   "how do felines hunt",
		TopK:   2,
		UseRAG: true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[QueryResponse](t, rec)
	require.NotNil(t, resp.Answer)
	assert.False(t, resp.Answer.Unavailable)
	require.NotEmpty(t, resp.Answer.Citations)
	assert.Equal(t, resp.Hits[0].DocId, resp.Answer.Citations[0].DocId)
}

func TestQueryEndpoint_DegradedRAGStillOK(t *testing.T) {
	generator := mock.NewMockGenerator()
	generator.GenerateFunc = func(ctx context.Context, prompt string, params ai.GenerationParams) (*ai.Generation, error) {
		return nil, errors.New("generation host down")
	}
	srv := newTestServer(t, generator)
	handler := srv.Router()
	seedCorpus(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/query", QueryRequest{
		Text:   "felines",
		TopK:   2,
		UseRAG: true,
	})
	// Retrieval succeeded; the missing answer is flagged, not an error.
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[QueryResponse](t, rec)
	require.NotNil(t, resp.Answer)
	assert.True(t, resp.Answer.Unavailable)
	assert.Empty(t, resp.Answer.Text)
	assert.NotEmpty(t, resp.Hits)
}

func TestReclusterAndTopicsEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)
	handler := srv.Router()

	// No clustering before any fit.
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/topics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	seedCorpus(t, handler)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/recluster", ReclusterRequest{K: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	fitted := decode[TopicsResponse](t, rec)
	assert.Equal(t, uint64(1), fitted.Version)
	assert.Len(t, fitted.Topics, 2)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/topics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	topics := decode[TopicsResponse](t, rec)
	assert.Equal(t, fitted.Version, topics.Version)
	assert.Len(t, topics.Topics, 2)
	for _, topic := range topics.Topics {
		assert.NotEmpty(t, topic.Label)
	}
}

func TestDeleteEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	handler := srv.Router()
	seedCorpus(t, handler)

	rec := doJSON(t, handler, http.MethodDelete, "/api/v1/documents", DeleteRequest{
		Ids: []string{"cats-1", "cats-2"},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	health := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, health.Code)
	var status struct {
		Documents int `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(health.Body.Bytes(), &status))
	assert.Equal(t, 2, status.Documents)

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/documents", DeleteRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteEndpoint_UnknownId(t *testing.T) {
	srv := newTestServer(t, nil)
	handler := srv.Router()
	seedCorpus(t, handler)

	rec := doJSON(t, handler, http.MethodDelete, "/api/v1/documents", DeleteRequest{
		Ids: []string{"no-such-document"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueryEndpoint_EmbedderUnavailable(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.Dim = testDim
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("embedding host down")
	}
	provider := mock.NewMockProviderWithServices(embedder, mock.NewMockGenerator())

	cfg := config.Default()
	cfg.Storage.InMemory = true
	cfg.AI.EmbeddingDim = testDim

	engine, err := scholarquery.NewEngine(cfg, scholarquery.WithAIProvider(provider))
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	srv := NewServer(engine, cfg.Server)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/query", QueryRequest{
		Text: "felines",
		TopK: 1,
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIngestEndpoint_Validation(t *testing.T) {
	srv := newTestServer(t, nil)
	handler := srv.Router()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/documents", IngestRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/documents", IngestRequest{
		Documents: []DocumentRequest{{Id: "", Text: "missing id"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	handler := srv.Router()
	seedCorpus(t, handler)

	doJSON(t, handler, http.MethodPost, "/api/v1/query", QueryRequest{Text: "felines", TopK: 1})

	rec := doJSON(t, handler, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "scholarquery_http_requests_total")
	assert.Contains(t, body, "scholarquery_query_total")
	assert.Contains(t, body, "scholarquery_ingest_documents_total")
}

func TestNotFound(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "endpoint not found")
}
