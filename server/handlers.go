// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/poiesic/scholarquery/cluster"
	"github.com/poiesic/scholarquery/core"
	"github.com/poiesic/scholarquery/storage"
)

// QueryRequest is the body of POST /api/v1/query.
type QueryRequest struct {
	Text        string  `json:"text"`
	TopK        int     `json:"top_k,omitempty"`
	TopicFilter []int32 `json:"topic_filter,omitempty"`
	Rerank      bool    `json:"use_rerank,omitempty"`
	UseRAG      bool    `json:"use_rag,omitempty"`
}

// HitResponse is one retrieved passage.
type HitResponse struct {
	DocId       string            `json:"doc_id"`
	Text        string            `json:"text"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	TopicId     int32             `json:"topic_id"`
	Score       float32           `json:"score"`
	RerankScore *float32          `json:"rerank_score,omitempty"`
}

// CitationResponse references a passage by position and document id.
type CitationResponse struct {
	HitIndex int    `json:"hit_index"`
	DocId    string `json:"doc_id"`
}

// AnswerResponse is the generated answer, present only for RAG queries.
type AnswerResponse struct {
	Text        string             `json:"text"`
	Citations   []CitationResponse `json:"citations"`
	Truncated   bool               `json:"truncated,omitempty"`
	Unavailable bool               `json:"unavailable,omitempty"`
}

// QueryResponse is the body returned by POST /api/v1/query.
type QueryResponse struct {
	Id       string          `json:"id"`
	Hits     []HitResponse   `json:"hits"`
	Degraded bool            `json:"degraded,omitempty"`
	Answer   *AnswerResponse `json:"answer,omitempty"`
}

// IngestRequest is the body of POST /api/v1/documents.
type IngestRequest struct {
	Documents []DocumentRequest `json:"documents"`
}

// DocumentRequest is one document to ingest.
type DocumentRequest struct {
	Id       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IngestResponse reports how many documents were ingested.
type IngestResponse struct {
	Ingested int `json:"ingested"`
}

// DeleteRequest is the body of DELETE /api/v1/documents.
type DeleteRequest struct {
	Ids []string `json:"ids"`
}

// ReclusterRequest is the body of POST /api/v1/recluster.
type ReclusterRequest struct {
	K int `json:"k,omitempty"`
}

// TopicResponse is one topic cluster.
type TopicResponse struct {
	Id    int32  `json:"id"`
	Label string `json:"label"`
}

// TopicsResponse is the active clustering snapshot.
type TopicsResponse struct {
	Version  uint64          `json:"version"`
	FittedAt time.Time       `json:"fitted_at"`
	Topics   []TopicResponse `json:"topics"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.engine.Query(r.Context(), &core.Query{
		Text:        req.Text,
		TopK:        req.TopK,
		TopicFilter: req.TopicFilter,
		Rerank:      req.Rerank,
		UseRAG:      req.UseRAG,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := QueryResponse{
		Id:       uuid.NewString(),
		Hits:     make([]HitResponse, 0, len(result.Retrieval.Hits)),
		Degraded: result.Retrieval.Degraded,
	}
	for _, hit := range result.Retrieval.Hits {
		h := HitResponse{
			DocId:    hit.Document.Id,
			Text:     hit.Document.Text,
			Metadata: hit.Document.Metadata,
			TopicId:  hit.Document.TopicId,
			Score:    hit.Score,
		}
		if hit.Reranked {
			score := hit.RerankScore
			h.RerankScore = &score
		}
		resp.Hits = append(resp.Hits, h)
	}
	if result.Answer != nil {
		answer := &AnswerResponse{
			Text:        result.Answer.Answer,
			Citations:   make([]CitationResponse, 0, len(result.Answer.Citations)),
			Truncated:   result.Answer.Truncated,
			Unavailable: result.Answer.Unavailable,
		}
		for _, c := range result.Answer.Citations {
			answer.Citations = append(answer.Citations, CitationResponse{
				HitIndex: c.HitIndex,
				DocId:    c.DocId,
			})
		}
		resp.Answer = answer
		if result.Answer.Unavailable {
			s.metrics.ragUnavailableTotal.Inc()
		}
	}

	s.metrics.recordQuery(req.Rerank, req.UseRAG, len(resp.Hits))
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Documents) == 0 {
		s.writeError(w, http.StatusBadRequest, "no documents provided")
		return
	}

	docs := make([]*core.Document, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = &core.Document{
			Id:       d.Id,
			Text:     d.Text,
			Metadata: d.Metadata,
		}
	}

	stored, err := s.engine.Ingest(r.Context(), docs...)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.metrics.documentsIngested.Add(float64(len(stored)))
	s.writeJSON(w, http.StatusCreated, IngestResponse{Ingested: len(stored)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Ids) == 0 {
		s.writeError(w, http.StatusBadRequest, "no document ids provided")
		return
	}

	if err := s.engine.Delete(r.Context(), req.Ids...); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecluster(w http.ResponseWriter, r *http.Request) {
	var req ReclusterRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	clustering, err := s.engine.Recluster(r.Context(), req.K)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, clusteringResponse(clustering))
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	clustering := s.engine.Topics()
	if clustering == nil {
		s.writeError(w, http.StatusNotFound, "no clustering fitted yet")
		return
	}
	s.writeJSON(w, http.StatusOK, clusteringResponse(clustering))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"documents": s.engine.DocumentCount(),
	})
}

func clusteringResponse(clustering *core.Clustering) TopicsResponse {
	resp := TopicsResponse{
		Version:  clustering.Version,
		FittedAt: clustering.FittedAt,
		Topics:   make([]TopicResponse, 0, len(clustering.Clusters)),
	}
	for _, c := range clustering.Clusters {
		resp.Topics = append(resp.Topics, TopicResponse{Id: c.Id, Label: c.Label})
	}
	return resp
}

// writeServiceError maps engine errors to HTTP statuses. Validation
// failures are the caller's fault, unknown documents are a 404, an AI
// backend down after retries is a 503; everything else is a 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidArgument),
		errors.Is(err, core.ErrInvalidTopK),
		errors.Is(err, core.ErrInvalidDocument),
		errors.Is(err, core.ErrEmptyDocumentId),
		errors.Is(err, core.ErrEmptyText),
		errors.Is(err, cluster.ErrInvalidK),
		errors.Is(err, cluster.ErrEmptyCorpus):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrServiceUnavailable):
		s.logger.Error("backend unavailable", "path", r.URL.Path, "err", err)
		s.writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Client went away; nothing useful to write.
		s.logger.Debug("request canceled", "path", r.URL.Path)
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to write response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}
