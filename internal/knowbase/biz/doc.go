// Package biz implements the knowledge-base business logic.
//
// The package is split into cooperating components:
//   - AnswerEngine: bounded retry loop turning a question into an answer
//   - SearchService: embedding-based similarity search with citation details
//   - ThreadParser: chat transcript formatting and Q&A pair extraction
//   - Ingestor: stores extracted pairs with embeddings and citations
package biz
