// Package handler provides the HTTP handlers of the knowledge base API.
package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/knowbase-io/knowbase/internal/knowbase/biz"
	"github.com/knowbase-io/knowbase/internal/knowbase/metrics"
	"github.com/knowbase-io/knowbase/internal/knowbase/store"
	"github.com/knowbase-io/knowbase/internal/model"
	"github.com/knowbase-io/knowbase/pkg/llm"
)

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Handler handles knowledge base HTTP requests.
type Handler struct {
	engine    *biz.AnswerEngine
	search    *biz.SearchService
	parser    *biz.ThreadParser
	ingestor  *biz.Ingestor
	embedder  llm.EmbeddingProvider
	questions store.QuestionStore
	citations store.CitationStore
}

// New creates a Handler.
func New(
	engine *biz.AnswerEngine,
	search *biz.SearchService,
	parser *biz.ThreadParser,
	ingestor *biz.Ingestor,
	embedder llm.EmbeddingProvider,
	questions store.QuestionStore,
	citations store.CitationStore,
) *Handler {
	return &Handler{
		engine:    engine,
		search:    search,
		parser:    parser,
		ingestor:  ingestor,
		embedder:  embedder,
		questions: questions,
		citations: citations,
	}
}

// AnswerRequest is a question to answer.
type AnswerRequest struct {
	Question string `json:"question" binding:"required"`
}

// Answer answers a question against the knowledge base.
func (h *Handler) Answer(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "Question is required"})
		return
	}

	result := h.engine.Answer(c.Request.Context(), req.Question)
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "ok", Data: result})
}

// ParseQAsRequest is a thread to extract question-answer pairs from.
type ParseQAsRequest struct {
	Thread []model.ChatMessage `json:"thread" binding:"required"`
}

// ParseQAsResponse carries the extracted pairs.
type ParseQAsResponse struct {
	QAPairs []model.QuestionAnswerPair `json:"qa_pairs"`
}

// ParseQAs extracts question-answer pairs from a thread.
func (h *Handler) ParseQAs(c *gin.Context) {
	var req ParseQAsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "Thread array is required"})
		return
	}

	pairs, err := h.parser.Parse(c.Request.Context(), req.Thread)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: "Failed to parse Q&As"})
		return
	}
	if pairs == nil {
		pairs = []model.QuestionAnswerPair{}
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "ok", Data: ParseQAsResponse{QAPairs: pairs}})
}

// IngestRequest is a thread to ingest into the knowledge base.
type IngestRequest struct {
	Thread []model.ChatMessage `json:"thread" binding:"required"`
}

// Ingest parses a thread and stores every extracted pair. Citations are
// resolved from the thread messages themselves.
func (h *Handler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "Thread array is required"})
		return
	}

	report := h.ingestor.Ingest(c.Request.Context(), req.Thread, nil)
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "ok", Data: report})
}

// CreateQuestionRequest creates a stored question. The embedding is computed
// server-side when not supplied.
type CreateQuestionRequest struct {
	Question    string    `json:"question" binding:"required"`
	Answer      string    `json:"answer" binding:"required"`
	CitationIDs []string  `json:"citationIds"`
	Embedding   []float32 `json:"embedding"`
}

// CreateQuestion stores a question-answer pair.
func (h *Handler) CreateQuestion(c *gin.Context) {
	var req CreateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	embedding := req.Embedding
	if len(embedding) == 0 {
		var err error
		embedding, err = h.embedder.EmbedSingle(c.Request.Context(), req.Question)
		metrics.Get().RecordEmbedding(err)
		if err != nil {
			c.JSON(http.StatusBadGateway, ErrorResponse{Code: 502, Message: "Failed to generate embedding"})
			return
		}
	}

	stored := &model.StoredQuestion{
		Question:    req.Question,
		Answer:      req.Answer,
		CitationIDs: req.CitationIDs,
		Embedding:   embedding,
	}
	if _, err := h.questions.Create(c.Request.Context(), stored); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: "Failed to store question"})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "ok", Data: stored})
}

// SearchRequest is a similarity search query. Either a text query or a
// precomputed embedding must be provided.
type SearchRequest struct {
	Query     string    `json:"query"`
	Embedding []float32 `json:"embedding"`
	Limit     int       `json:"limit"`
}

// SearchResponse carries similarity search results.
type SearchResponse struct {
	Results []model.SimilarQuestion `json:"results"`
}

// SearchQuestions runs a similarity search over stored questions.
func (h *Handler) SearchQuestions(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}
	if req.Query == "" && len(req.Embedding) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "Query or embedding is required"})
		return
	}

	var (
		results []model.SimilarQuestion
		err     error
	)
	if len(req.Embedding) > 0 {
		results, err = h.search.SearchByEmbedding(c.Request.Context(), req.Embedding, req.Limit)
	} else {
		results, err = h.search.Search(c.Request.Context(), req.Query, req.Limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: "Failed to search database"})
		return
	}
	if results == nil {
		results = []model.SimilarQuestion{}
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "ok", Data: SearchResponse{Results: results}})
}

// BrowseQuestions lists stored questions with offset/limit paging.
func (h *Handler) BrowseQuestions(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	questions, err := h.questions.List(c.Request.Context(), offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: "Failed to list questions"})
		return
	}
	if questions == nil {
		questions = []model.StoredQuestion{}
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "ok", Data: questions})
}

// CreateCitationRequest creates a citation.
type CreateCitationRequest struct {
	Permalink string `json:"permalink" binding:"required"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Username  string `json:"username"`
}

// CreateCitation stores a citation and returns it with its generated id.
func (h *Handler) CreateCitation(c *gin.Context) {
	var req CreateCitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	citation := &model.Citation{
		ID:        uuid.NewString(),
		Permalink: req.Permalink,
		Content:   req.Content,
		Timestamp: req.Timestamp,
		Username:  req.Username,
	}
	if err := h.citations.Create(c.Request.Context(), citation); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: "Failed to store citation"})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "ok", Data: citation})
}

// ListCitations returns citations for a comma-separated id set. Missing
// ids are omitted from the result.
func (h *Handler) ListCitations(c *gin.Context) {
	raw := c.Query("ids")
	if raw == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "ids is required"})
		return
	}

	ids := make([]string, 0)
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	citations, err := h.citations.GetByIDs(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: "Failed to load citations"})
		return
	}
	if citations == nil {
		citations = []model.Citation{}
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "ok", Data: citations})
}

// GetCitation returns a citation by id.
func (h *Handler) GetCitation(c *gin.Context) {
	citation, err := h.citations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: 404, Message: "Citation not found"})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "ok", Data: citation})
}

// EmbeddingRequest is a text to embed.
type EmbeddingRequest struct {
	Text string `json:"text" binding:"required"`
}

// EmbeddingResponse carries a computed embedding.
type EmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embedding computes the embedding of a text.
func (h *Handler) Embedding(c *gin.Context) {
	var req EmbeddingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "Text is required"})
		return
	}

	embedding, err := h.embedder.EmbedSingle(c.Request.Context(), req.Text)
	metrics.Get().RecordEmbedding(err)
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{Code: 502, Message: "Failed to generate embedding"})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "ok", Data: EmbeddingResponse{Embedding: embedding}})
}

// Stats reports store sizes and service counters.
func (h *Handler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	questionCount, err := h.questions.Count(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: "Failed to count questions"})
		return
	}
	citationCount, err := h.citations.Count(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: "Failed to count citations"})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "ok", Data: gin.H{
		"questions": questionCount,
		"citations": citationCount,
		"service":   metrics.Get().Stats(),
	}})
}

// Healthz reports liveness.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Metrics exports service counters in Prometheus text format.
func (h *Handler) Metrics(c *gin.Context) {
	c.String(http.StatusOK, metrics.Get().Export("knowbase"))
}
