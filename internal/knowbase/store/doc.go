// Package store provides persistence for questions and citations.
//
// Questions with their embeddings live in Milvus; citation records live
// in PostgreSQL via GORM.
package store
