package handler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowbase-io/knowbase/internal/knowbase/biz"
	"github.com/knowbase-io/knowbase/internal/knowbase/handler"
	"github.com/knowbase-io/knowbase/internal/knowbase/router"
	"github.com/knowbase-io/knowbase/internal/model"
	"github.com/knowbase-io/knowbase/pkg/llm"
	"github.com/knowbase-io/knowbase/pkg/utils/json"
)

type stubChat struct{ reply string }

func (c *stubChat) Chat(_ context.Context, _ []llm.Message) (string, error) { return c.reply, nil }
func (c *stubChat) Name() string                                            { return "stub" }

type stubEmbedder struct{}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}
func (e *stubEmbedder) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}
func (e *stubEmbedder) Name() string { return "stub" }

type stubQuestionStore struct {
	results []model.SimilarQuestion
	created []*model.StoredQuestion
}

func (s *stubQuestionStore) Create(_ context.Context, q *model.StoredQuestion) (int64, error) {
	q.ID = int64(len(s.created) + 1)
	s.created = append(s.created, q)
	return q.ID, nil
}
func (s *stubQuestionStore) Search(_ context.Context, _ []float32, _ int) ([]model.SimilarQuestion, error) {
	return s.results, nil
}
func (s *stubQuestionStore) List(_ context.Context, _, _ int) ([]model.StoredQuestion, error) {
	return nil, nil
}
func (s *stubQuestionStore) Count(_ context.Context) (int64, error) {
	return int64(len(s.created)), nil
}

type stubCitationStore struct{ rows map[string]model.Citation }

func (s *stubCitationStore) Create(_ context.Context, c *model.Citation) error {
	s.rows[c.ID] = *c
	return nil
}
func (s *stubCitationStore) Get(_ context.Context, id string) (*model.Citation, error) {
	if c, ok := s.rows[id]; ok {
		return &c, nil
	}
	return nil, fmt.Errorf("not found")
}
func (s *stubCitationStore) GetByIDs(_ context.Context, ids []string) ([]model.Citation, error) {
	out := make([]model.Citation, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.rows[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}
func (s *stubCitationStore) Count(_ context.Context) (int64, error) { return int64(len(s.rows)), nil }

func newTestRouter(chatReply string, questions *stubQuestionStore) *gin.Engine {
	gin.SetMode(gin.TestMode)

	chat := &stubChat{reply: chatReply}
	embedder := &stubEmbedder{}
	citations := &stubCitationStore{rows: make(map[string]model.Citation)}

	search := biz.NewSearchService(embedder, questions, citations)
	parser := biz.NewThreadParser(chat)
	engine := biz.NewAnswerEngine(chat, search, nil, biz.EngineConfig{})
	ingestor := biz.NewIngestor(parser, embedder, questions, citations)

	ginEngine := gin.New()
	router.Register(ginEngine, handler.New(engine, search, parser, ingestor, embedder, questions, citations))
	return ginEngine
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAnswerEndpoint(t *testing.T) {
	r := newTestRouter(`{"type":"answer","content":"Deploys run nightly.","sources":[]}`, &stubQuestionStore{})

	w := doJSON(t, r, http.MethodPost, "/v1/ai/answer", `{"question":"When do deploys run?"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Code int                `json:"code"`
		Data model.AnswerResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	assert.True(t, resp.Data.HasAnswer)
	assert.Equal(t, "Deploys run nightly.", resp.Data.Answer)
}

func TestAnswerEndpointRequiresQuestion(t *testing.T) {
	r := newTestRouter(`{}`, &stubQuestionStore{})
	w := doJSON(t, r, http.MethodPost, "/v1/ai/answer", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchEndpoint(t *testing.T) {
	questions := &stubQuestionStore{results: []model.SimilarQuestion{
		{ID: 1, Question: "Is the API down?", Answer: "Until noon", Similarity: 0.9},
	}}
	r := newTestRouter(`{}`, questions)

	w := doJSON(t, r, http.MethodPost, "/v1/questions/search", `{"query":"api outage","limit":3}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data handler.SearchResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Results, 1)
	assert.Equal(t, "Until noon", resp.Data.Results[0].Answer)
}

func TestCreateAndGetCitation(t *testing.T) {
	r := newTestRouter(`{}`, &stubQuestionStore{})

	w := doJSON(t, r, http.MethodPost, "/v1/citations",
		`{"permalink":"https://example.slack.com/p1","content":"down until noon","username":"bob"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var created struct {
		Data model.Citation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ID)

	w = doJSON(t, r, http.MethodGet, "/v1/citations/"+created.Data.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/v1/citations/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodGet, "/v1/citations?ids="+created.Data.ID+",missing", "")
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Data []model.Citation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed.Data, 1)
}

func TestSearchEndpointByEmbedding(t *testing.T) {
	questions := &stubQuestionStore{results: []model.SimilarQuestion{
		{ID: 2, Question: "How are deploys triggered?", Answer: "Nightly cron", Similarity: 0.8},
	}}
	r := newTestRouter(`{}`, questions)

	w := doJSON(t, r, http.MethodPost, "/v1/questions/search", `{"embedding":[0.1,0.2],"limit":3}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data handler.SearchResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Results, 1)
}

func TestSearchEndpointRequiresQueryOrEmbedding(t *testing.T) {
	r := newTestRouter(`{}`, &stubQuestionStore{})
	w := doJSON(t, r, http.MethodPost, "/v1/questions/search", `{"limit":3}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestEndpoint(t *testing.T) {
	questions := &stubQuestionStore{}
	r := newTestRouter(
		`{"qa_pairs":[{"question":"Is the API currently unavailable?","answer":"Down until noon UTC","citations":[1,2]}]}`,
		questions,
	)

	w := doJSON(t, r, http.MethodPost, "/v1/ai/ingest",
		`{"thread":[{"user":"alice","text":"Is the API down?"},{"user":"bob","text":"Yes, until noon UTC"}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data biz.IngestReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.QuestionsStored)
	assert.Equal(t, 2, resp.Data.CitationsStored)
	require.Len(t, questions.created, 1)
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(`{}`, &stubQuestionStore{})
	w := doJSON(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(`{}`, &stubQuestionStore{})
	w := doJSON(t, r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "knowbase_answers_total")
}
