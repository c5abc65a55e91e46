// Package enrich talks to a local Ollama-compatible endpoint to score and
// annotate captured notes. The daemon treats enrichment as best-effort:
// when the endpoint is down, handlers that depend on it are disabled
// rather than failing the whole run.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/inneros/inneros/internal/apperr"
)

// DefaultTimeout bounds a single enrichment request.
const DefaultTimeout = 60 * time.Second

// Result is the model's assessment of one note.
type Result struct {
	QualityScore float64  `json:"quality_score"`
	Tags         []string `json:"tags,omitempty"`
	Summary      string   `json:"summary,omitempty"`
}

// Client calls an Ollama-compatible HTTP API.
type Client struct {
	endpoint string
	model    string
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a client for the given endpoint, e.g.
// "http://localhost:11434". A zero timeout uses DefaultTimeout.
func NewClient(endpoint, model string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Available probes the endpoint's tag listing. A short deadline keeps the
// daemon's startup probe fast when nothing is listening.
func (c *Client) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("enrich: endpoint unavailable", slog.String("error", err.Error()))
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Enrich asks the model to assess a note's content. The model is prompted
// for a strict JSON object; anything else is an error. A clamped quality
// score in [0,1] is always returned on success.
func (c *Client) Enrich(ctx context.Context, content string) (*Result, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: buildPrompt(content),
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return nil, fmt.Errorf("enrich: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("enrich: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enrich: %w: %w", apperr.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("enrich: endpoint returned %s: %w", resp.Status, apperr.ErrUnavailable)
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return nil, fmt.Errorf("enrich: decode response: %w", err)
	}

	var res Result
	if err := json.Unmarshal([]byte(gen.Response), &res); err != nil {
		return nil, fmt.Errorf("enrich: model returned non-JSON assessment: %w", err)
	}
	if res.QualityScore < 0 {
		res.QualityScore = 0
	}
	if res.QualityScore > 1 {
		res.QualityScore = 1
	}
	return &res, nil
}

func buildPrompt(content string) string {
	var b strings.Builder
	b.WriteString("Assess the following note for a personal knowledge base. ")
	b.WriteString("Respond with a JSON object containing quality_score (0.0 to 1.0), ")
	b.WriteString("tags (up to 5 lowercase strings), and summary (one sentence).\n\n")
	b.WriteString(content)
	return b.String()
}
