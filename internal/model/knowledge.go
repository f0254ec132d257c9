// Package model defines the shared data structures of the knowledge base.
package model

// ChatMessage is a single message from a chat thread, as received from the
// chat platform. Timestamp is the platform's message timestamp string.
type ChatMessage struct {
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
}

// QuestionAnswerPair is one extracted question-answer pair. Citations are
// 1-based indexes into the thread the pair was extracted from.
type QuestionAnswerPair struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Citations []int  `json:"citations"`
}

// StoredQuestion is a question-answer pair persisted in the vector store
// together with the question's embedding.
type StoredQuestion struct {
	ID          int64     `json:"id"`
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	CitationIDs []string  `json:"citationIds"`
	Embedding   []float32 `json:"-"`
}

// Citation is a persisted reference to the chat message an answer came from.
type Citation struct {
	ID        string `json:"id" gorm:"type:varchar(36);primaryKey"`
	Permalink string `json:"permalink" gorm:"type:text"`
	Content   string `json:"content" gorm:"type:text"`
	Timestamp string `json:"timestamp" gorm:"type:varchar(64)"`
	Username  string `json:"username" gorm:"type:varchar(255)"`
}

// TableName returns the table name for Citation.
func (Citation) TableName() string {
	return "citations"
}

// CitationDetail is the resolved form of a citation attached to a search
// result.
type CitationDetail struct {
	Permalink string `json:"permalink"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Username  string `json:"username"`
}

// SimilarQuestion is a stored question returned from similarity search.
// Similarity is the cosine similarity to the query, in [-1, 1].
type SimilarQuestion struct {
	ID              int64            `json:"id"`
	Question        string           `json:"question"`
	Answer          string           `json:"answer"`
	CitationIDs     []string         `json:"citationIds"`
	Similarity      float32          `json:"similarity"`
	CitationDetails []CitationDetail `json:"citationDetails"`
}

// AnswerResult is the terminal outcome of answering a question. HasAnswer is
// false for every failure path; Answer always carries a user-presentable
// message.
type AnswerResult struct {
	Answer    string   `json:"answer"`
	HasAnswer bool     `json:"hasAnswer"`
	Sources   []string `json:"sources,omitempty"`
}
