package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordAndExport(t *testing.T) {
	m := Get()
	m.Reset()

	m.RecordAnswer(true, false, nil)
	m.RecordAnswer(false, true, nil)
	m.RecordAnswer(false, false, errors.New("boom"))
	m.RecordSearch(2, nil)
	m.RecordSearch(0, nil)
	m.RecordModelCall(100*time.Millisecond, nil)
	m.RecordModelCall(0, errors.New("timeout"))
	m.RecordEmbedding(nil)
	m.RecordIngestion(1, 2, 1, nil)

	out := m.Export("knowbase")
	assert.Contains(t, out, "knowbase_answers_total 3")
	assert.Contains(t, out, "knowbase_answers_with_answer_total 1")
	assert.Contains(t, out, "knowbase_answers_cache_hits_total 1")
	assert.Contains(t, out, "knowbase_answers_errors_total 1")
	assert.Contains(t, out, "knowbase_searches_total 2")
	assert.Contains(t, out, "knowbase_searches_empty_total 1")
	assert.Contains(t, out, "knowbase_model_calls_total 2")
	assert.Contains(t, out, "knowbase_model_calls_errors_total 1")
	assert.Contains(t, out, "knowbase_questions_stored_total 1")
	assert.Contains(t, out, "knowbase_citations_stored_total 2")
	assert.Contains(t, out, "knowbase_citations_skipped_total 1")
	assert.Contains(t, out, "# TYPE knowbase_uptime_seconds gauge")
}

func TestStats(t *testing.T) {
	m := Get()
	m.Reset()

	m.RecordAnswer(true, false, nil)
	m.RecordModelCall(200*time.Millisecond, nil)

	stats := m.Stats()
	answers := stats["answers"].(map[string]any)
	assert.EqualValues(t, uint64(1), answers["total"])

	modelStats := stats["model"].(map[string]any)
	assert.InDelta(t, 0.2, modelStats["avg_duration_secs"].(float64), 0.001)
}
