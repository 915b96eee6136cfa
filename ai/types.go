package ai

// GenerationParams are the per-request knobs passed to the generation model.
type GenerationParams struct {
	// MaxTokens limits the length of the generated answer. 0 uses the
	// provider default.
	MaxTokens int

	// Temperature controls sampling randomness. Grounded summarization wants
	// low values; the default config uses 0.1.
	Temperature float64
}

// Generation is the result of one generation call.
type Generation struct {
	Text string

	// PromptTokens and CompletionTokens report usage when the backend
	// provides it, 0 otherwise.
	PromptTokens     int
	CompletionTokens int
}
