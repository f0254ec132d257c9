package biz_test

import (
	"context"
	"fmt"

	"github.com/knowbase-io/knowbase/internal/model"
	"github.com/knowbase-io/knowbase/pkg/llm"
)

// scriptedChat replays a fixed sequence of replies and records the message
// histories it was called with.
type scriptedChat struct {
	replies []string
	errs    []error
	calls   int
	history [][]llm.Message
}

func (c *scriptedChat) Chat(_ context.Context, messages []llm.Message) (string, error) {
	snapshot := make([]llm.Message, len(messages))
	copy(snapshot, messages)
	c.history = append(c.history, snapshot)

	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i < len(c.replies) {
		return c.replies[i], nil
	}
	return "", fmt.Errorf("scripted chat exhausted after %d calls", i)
}

func (c *scriptedChat) Name() string { return "scripted" }

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls += len(texts)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, nil
}

func (e *fakeEmbedder) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.vector, nil
}

func (e *fakeEmbedder) Name() string { return "fake" }

type fakeQuestionStore struct {
	searchResults []model.SimilarQuestion
	searchErr     error
	created       []*model.StoredQuestion
	createErr     error
	nextID        int64
}

func (s *fakeQuestionStore) Create(_ context.Context, q *model.StoredQuestion) (int64, error) {
	if s.createErr != nil {
		return 0, s.createErr
	}
	s.nextID++
	q.ID = s.nextID
	s.created = append(s.created, q)
	return q.ID, nil
}

func (s *fakeQuestionStore) Search(_ context.Context, _ []float32, _ int) ([]model.SimilarQuestion, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.searchResults, nil
}

func (s *fakeQuestionStore) List(_ context.Context, _, _ int) ([]model.StoredQuestion, error) {
	out := make([]model.StoredQuestion, 0, len(s.created))
	for _, q := range s.created {
		out = append(out, *q)
	}
	return out, nil
}

func (s *fakeQuestionStore) Count(_ context.Context) (int64, error) {
	return int64(len(s.created)), nil
}

type fakeCitationStore struct {
	rows      map[string]model.Citation
	createErr error
}

func newFakeCitationStore() *fakeCitationStore {
	return &fakeCitationStore{rows: make(map[string]model.Citation)}
}

func (s *fakeCitationStore) Create(_ context.Context, c *model.Citation) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.rows[c.ID] = *c
	return nil
}

func (s *fakeCitationStore) Get(_ context.Context, id string) (*model.Citation, error) {
	if c, ok := s.rows[id]; ok {
		return &c, nil
	}
	return nil, fmt.Errorf("citation %s not found", id)
}

func (s *fakeCitationStore) GetByIDs(_ context.Context, ids []string) ([]model.Citation, error) {
	out := make([]model.Citation, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.rows[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeCitationStore) Count(_ context.Context) (int64, error) {
	return int64(len(s.rows)), nil
}
