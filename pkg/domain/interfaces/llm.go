package interfaces

import "context"

// GenerateOptions holds the fixed sampling configuration of one generation call
type GenerateOptions struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	// JSON requests a JSON object response
	JSON bool
}

// Generator produces text from a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Embedder converts texts into fixed-length vectors
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}
