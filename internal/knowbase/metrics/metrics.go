// Package metrics collects service-level counters for the knowledge base
// and exports them in Prometheus text exposition format.
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds the service counters. All counters are updated atomically
// and safe for concurrent use.
type Metrics struct {
	answersTotal     uint64
	answersWithHit   uint64
	answersCacheHits uint64
	answersErrors    uint64

	searchesTotal  uint64
	searchesEmpty  uint64
	searchesErrors uint64

	modelCallsTotal    uint64
	modelCallsErrors   uint64
	modelCallsDuration float64

	embeddingsTotal  uint64
	embeddingsErrors uint64

	threadsIngested  uint64
	questionsStored  uint64
	citationsStored  uint64
	citationsSkipped uint64
	ingestErrors     uint64

	startTime  time.Time
	durationMu sync.Mutex
}

var (
	global *Metrics
	once   sync.Once
)

// Get returns the global metrics instance.
func Get() *Metrics {
	once.Do(func() {
		global = &Metrics{startTime: time.Now()}
	})
	return global
}

// RecordAnswer records the outcome of one answer request.
func (m *Metrics) RecordAnswer(hasAnswer, cacheHit bool, err error) {
	atomic.AddUint64(&m.answersTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.answersErrors, 1)
		return
	}
	if hasAnswer {
		atomic.AddUint64(&m.answersWithHit, 1)
	}
	if cacheHit {
		atomic.AddUint64(&m.answersCacheHits, 1)
	}
}

// RecordSearch records one similarity search.
func (m *Metrics) RecordSearch(hits int, err error) {
	atomic.AddUint64(&m.searchesTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.searchesErrors, 1)
		return
	}
	if hits == 0 {
		atomic.AddUint64(&m.searchesEmpty, 1)
	}
}

// RecordModelCall records one language model call.
func (m *Metrics) RecordModelCall(duration time.Duration, err error) {
	atomic.AddUint64(&m.modelCallsTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.modelCallsErrors, 1)
		return
	}
	m.durationMu.Lock()
	m.modelCallsDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordEmbedding records one embedding call.
func (m *Metrics) RecordEmbedding(err error) {
	atomic.AddUint64(&m.embeddingsTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.embeddingsErrors, 1)
	}
}

// RecordIngestion records the outcome of one thread ingestion.
func (m *Metrics) RecordIngestion(questions, citations, skipped int, err error) {
	atomic.AddUint64(&m.threadsIngested, 1)
	atomic.AddUint64(&m.questionsStored, uint64(questions))
	atomic.AddUint64(&m.citationsStored, uint64(citations))
	atomic.AddUint64(&m.citationsSkipped, uint64(skipped))
	if err != nil {
		atomic.AddUint64(&m.ingestErrors, 1)
	}
}

func writeCounter(sb *strings.Builder, prefix, name, help string, value uint64) {
	fmt.Fprintf(sb, "# HELP %s_%s %s\n", prefix, name, help)
	fmt.Fprintf(sb, "# TYPE %s_%s counter\n", prefix, name)
	fmt.Fprintf(sb, "%s_%s %d\n\n", prefix, name, value)
}

// Export renders all counters in Prometheus text exposition format.
func (m *Metrics) Export(prefix string) string {
	var sb strings.Builder

	writeCounter(&sb, prefix, "answers_total", "Total answer requests.", atomic.LoadUint64(&m.answersTotal))
	writeCounter(&sb, prefix, "answers_with_answer_total", "Answer requests that produced an answer.", atomic.LoadUint64(&m.answersWithHit))
	writeCounter(&sb, prefix, "answers_cache_hits_total", "Answer requests served from cache.", atomic.LoadUint64(&m.answersCacheHits))
	writeCounter(&sb, prefix, "answers_errors_total", "Answer request errors.", atomic.LoadUint64(&m.answersErrors))

	writeCounter(&sb, prefix, "searches_total", "Total similarity searches.", atomic.LoadUint64(&m.searchesTotal))
	writeCounter(&sb, prefix, "searches_empty_total", "Similarity searches with no results above threshold.", atomic.LoadUint64(&m.searchesEmpty))
	writeCounter(&sb, prefix, "searches_errors_total", "Similarity search errors.", atomic.LoadUint64(&m.searchesErrors))

	writeCounter(&sb, prefix, "model_calls_total", "Total language model calls.", atomic.LoadUint64(&m.modelCallsTotal))
	writeCounter(&sb, prefix, "model_calls_errors_total", "Language model call errors.", atomic.LoadUint64(&m.modelCallsErrors))

	m.durationMu.Lock()
	modelDuration := m.modelCallsDuration
	m.durationMu.Unlock()
	fmt.Fprintf(&sb, "# HELP %s_model_calls_duration_seconds_total Total language model call duration.\n", prefix)
	fmt.Fprintf(&sb, "# TYPE %s_model_calls_duration_seconds_total counter\n", prefix)
	fmt.Fprintf(&sb, "%s_model_calls_duration_seconds_total %.6f\n\n", prefix, modelDuration)

	writeCounter(&sb, prefix, "embeddings_total", "Total embedding calls.", atomic.LoadUint64(&m.embeddingsTotal))
	writeCounter(&sb, prefix, "embeddings_errors_total", "Embedding call errors.", atomic.LoadUint64(&m.embeddingsErrors))

	writeCounter(&sb, prefix, "threads_ingested_total", "Total threads ingested.", atomic.LoadUint64(&m.threadsIngested))
	writeCounter(&sb, prefix, "questions_stored_total", "Total questions stored.", atomic.LoadUint64(&m.questionsStored))
	writeCounter(&sb, prefix, "citations_stored_total", "Total citations stored.", atomic.LoadUint64(&m.citationsStored))
	writeCounter(&sb, prefix, "citations_skipped_total", "Citations skipped due to resolution failures.", atomic.LoadUint64(&m.citationsSkipped))
	writeCounter(&sb, prefix, "ingest_errors_total", "Thread ingestion errors.", atomic.LoadUint64(&m.ingestErrors))

	uptime := time.Since(m.startTime).Seconds()
	fmt.Fprintf(&sb, "# HELP %s_uptime_seconds Service uptime in seconds.\n", prefix)
	fmt.Fprintf(&sb, "# TYPE %s_uptime_seconds gauge\n", prefix)
	fmt.Fprintf(&sb, "%s_uptime_seconds %.2f\n", prefix, uptime)

	return sb.String()
}

// Stats returns the current counters for the stats API.
func (m *Metrics) Stats() map[string]any {
	m.durationMu.Lock()
	modelDuration := m.modelCallsDuration
	m.durationMu.Unlock()

	modelTotal := atomic.LoadUint64(&m.modelCallsTotal)
	avgModelDuration := 0.0
	if modelTotal > 0 {
		avgModelDuration = modelDuration / float64(modelTotal)
	}

	return map[string]any{
		"answers": map[string]any{
			"total":       atomic.LoadUint64(&m.answersTotal),
			"with_answer": atomic.LoadUint64(&m.answersWithHit),
			"cache_hits":  atomic.LoadUint64(&m.answersCacheHits),
			"errors":      atomic.LoadUint64(&m.answersErrors),
		},
		"searches": map[string]any{
			"total":  atomic.LoadUint64(&m.searchesTotal),
			"empty":  atomic.LoadUint64(&m.searchesEmpty),
			"errors": atomic.LoadUint64(&m.searchesErrors),
		},
		"model": map[string]any{
			"calls_total":         modelTotal,
			"errors":              atomic.LoadUint64(&m.modelCallsErrors),
			"total_duration_secs": modelDuration,
			"avg_duration_secs":   avgModelDuration,
		},
		"embeddings": map[string]any{
			"total":  atomic.LoadUint64(&m.embeddingsTotal),
			"errors": atomic.LoadUint64(&m.embeddingsErrors),
		},
		"ingestion": map[string]any{
			"threads":           atomic.LoadUint64(&m.threadsIngested),
			"questions_stored":  atomic.LoadUint64(&m.questionsStored),
			"citations_stored":  atomic.LoadUint64(&m.citationsStored),
			"citations_skipped": atomic.LoadUint64(&m.citationsSkipped),
			"errors":            atomic.LoadUint64(&m.ingestErrors),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
	}
}

// Reset clears all counters. For tests only.
func (m *Metrics) Reset() {
	atomic.StoreUint64(&m.answersTotal, 0)
	atomic.StoreUint64(&m.answersWithHit, 0)
	atomic.StoreUint64(&m.answersCacheHits, 0)
	atomic.StoreUint64(&m.answersErrors, 0)
	atomic.StoreUint64(&m.searchesTotal, 0)
	atomic.StoreUint64(&m.searchesEmpty, 0)
	atomic.StoreUint64(&m.searchesErrors, 0)
	atomic.StoreUint64(&m.modelCallsTotal, 0)
	atomic.StoreUint64(&m.modelCallsErrors, 0)
	atomic.StoreUint64(&m.embeddingsTotal, 0)
	atomic.StoreUint64(&m.embeddingsErrors, 0)
	atomic.StoreUint64(&m.threadsIngested, 0)
	atomic.StoreUint64(&m.questionsStored, 0)
	atomic.StoreUint64(&m.citationsStored, 0)
	atomic.StoreUint64(&m.citationsSkipped, 0)
	atomic.StoreUint64(&m.ingestErrors, 0)

	m.durationMu.Lock()
	m.modelCallsDuration = 0
	m.startTime = time.Now()
	m.durationMu.Unlock()
}
