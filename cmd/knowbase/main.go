// Package main is the entry point for the knowbase service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/knowbase-io/knowbase/internal/knowbase"

	// Register model providers.
	_ "github.com/knowbase-io/knowbase/pkg/llm/gemini"
	_ "github.com/knowbase-io/knowbase/pkg/llm/openai"
)

func main() {
	knowbase.NewApp().Run()
}
