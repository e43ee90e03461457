package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Encoder encodes a summary text into a vector. Implementations may call out
// to remote models; the builder treats every failure as a fallback trigger.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// HTTPEncoder calls an OpenAI-compatible embeddings endpoint.
type HTTPEncoder struct {
	apiKey     string
	apiBase    string
	model      string
	dimensions int
	httpClient *http.Client
}

// NewHTTPEncoder creates an encoder for the given endpoint and model.
func NewHTTPEncoder(apiKey, apiBase, model string, dimensions int) *HTTPEncoder {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &HTTPEncoder{
		apiKey:     apiKey,
		apiBase:    strings.TrimSuffix(apiBase, "/"),
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Encode requests one embedding for the input text.
func (e *HTTPEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	body := map[string]any{
		"model": e.model,
		"input": text,
	}
	if e.dimensions > 0 {
		body["dimensions"] = e.dimensions
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", e.apiBase+"/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute embedding request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var embResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("parse embedding response: %w", err)
	}
	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data in response")
	}
	return embResp.Data[0].Embedding, nil
}
