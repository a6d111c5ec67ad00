package commands

// EmbeddingConfig contains common flag definitions for embedding configuration
type EmbeddingConfig struct {
	// Provider is the embedding provider to use
	Provider string `help:"Embedding provider to use" default:"llamacpp" enum:"llamacpp,gemini,lmstudio,ollama,openai" env:"EMBEDDING_PROVIDER"`

	// LlamaCppModel is the specific llama.cpp embedding model name
	LlamaCppModel string `help:"Specific llama.cpp embedding model name" env:"LLAMACPP_EMBEDDING_MODEL"`
	// LlamaCppURL is the llama.cpp server URL
	LlamaCppURL string `help:"llama.cpp server URL" env:"LLAMACPP_URL"`

	// GeminiAPIKey is the API key for Gemini
	GeminiAPIKey string `help:"Google Gemini API key" env:"GEMINI_API_KEY"`
	// GeminiModel is the Gemini embedding model name
	GeminiModel string `help:"Gemini embedding model name" default:"text-embedding-004" env:"GEMINI_EMBEDDING_MODEL"`

	// LMStudioModel is the LM Studio embedding model name
	LMStudioModel string `help:"LM Studio embedding model name" default:"text-embedding-nomic-embed-text-v1.5" env:"LMSTUDIO_EMBEDDING_MODEL"`
	// LMStudioEndpoint is the LM Studio OpenAI-compatible endpoint
	LMStudioEndpoint string `help:"LM Studio OpenAI-compatible endpoint" default:"http://localhost:1234/v1" env:"LMSTUDIO_ENDPOINT"`

	// OllamaModel is the Ollama embedding model name
	OllamaModel string `help:"Ollama embedding model name" default:"nomic-embed-text" env:"OLLAMA_EMBEDDING_MODEL"`
	// OllamaEndpoint is the Ollama OpenAI-compatible endpoint
	OllamaEndpoint string `help:"Ollama OpenAI-compatible endpoint" default:"http://localhost:11434/v1" env:"OLLAMA_ENDPOINT"`

	// OpenAIAPIKey is the API key for OpenAI
	OpenAIAPIKey string `help:"OpenAI API key" env:"OPENAI_API_KEY"`
	// OpenAIModel is the OpenAI embedding model name
	OpenAIModel string `help:"OpenAI embedding model name" default:"text-embedding-3-small" env:"OPENAI_EMBEDDING_MODEL"`
	// OpenAIEndpoint overrides the OpenAI API endpoint
	OpenAIEndpoint string `help:"OpenAI-compatible API endpoint" env:"OPENAI_ENDPOINT"`
}

// CommonConfig contains configuration common to all commands
type CommonConfig struct {
	// DataDir is the path to the data directory
	DataDir string `help:"Path to data directory" default:"./data" env:"PENNY_PAL_DATA_DIR"`
	// Timezone is the timezone to use for transaction dates
	Timezone string `help:"Timezone to use for transaction dates" required:"" default:"Europe/Copenhagen"`
	// LogLevel is the logging level to use
	LogLevel string `help:"Log level (debug, info, warn, error)" default:"warn" enum:"debug,info,warn,error"`
}
