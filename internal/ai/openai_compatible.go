package ai

import (
	"net/http"
	"time"
)

// OpenAICompatibleClient talks to any endpoint that implements the OpenAI
// REST surface (OpenAI, vLLM, Ollama, DashScope compatible mode).
type OpenAICompatibleClient struct {
	httpClient *http.Client
}

func NewOpenAICompatibleClient() *OpenAICompatibleClient {
	return NewOpenAICompatibleClientWithHTTP(&http.Client{Timeout: 90 * time.Second})
}

func NewOpenAICompatibleClientWithHTTP(httpClient *http.Client) *OpenAICompatibleClient {
	return &OpenAICompatibleClient{httpClient: httpClient}
}
