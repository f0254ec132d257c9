// Package router wires the knowledge base HTTP routes.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/knowbase-io/knowbase/internal/knowbase/handler"
)

// Register registers all knowledge base routes on the engine.
func Register(engine *gin.Engine, h *handler.Handler) {
	logger.Info("Registering knowledge base routes...")

	engine.GET("/healthz", h.Healthz)
	engine.GET("/metrics", h.Metrics)

	v1 := engine.Group("/v1")
	{
		ai := v1.Group("/ai")
		{
			ai.POST("/answer", h.Answer)
			ai.POST("/parse-qas", h.ParseQAs)
			ai.POST("/ingest", h.Ingest)
		}

		questions := v1.Group("/questions")
		{
			questions.POST("", h.CreateQuestion)
			questions.POST("/search", h.SearchQuestions)
			questions.GET("/browse", h.BrowseQuestions)
		}

		citations := v1.Group("/citations")
		{
			citations.POST("", h.CreateCitation)
			citations.GET("", h.ListCitations)
			citations.GET("/:id", h.GetCitation)
		}

		v1.POST("/embeddings", h.Embedding)
		v1.GET("/stats", h.Stats)
	}

	logger.Info("HTTP routes registered")
}
