package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/metrics"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
	"github.com/rs/zerolog"
)

const providerHTTP = "openai-compatible"

// DefaultTimeout bounds a single HTTP call when none is configured.
const DefaultTimeout = 20 * time.Second

// HTTPConfig configures the vision classifier.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// HTTPClient classifies images through an OpenAI-compatible chat completions
// endpoint. The model is asked to reply with a JSON object of label confidences.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	model      string
	vocabulary *taxonomy.Vocabulary
	http       *http.Client
	logger     zerolog.Logger
}

// NewHTTPClient creates a vision classifier.
func NewHTTPClient(config HTTPConfig, vocabulary *taxonomy.Vocabulary, logger zerolog.Logger) (*HTTPClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("classifier base URL is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("classifier model is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	return &HTTPClient{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		model:      config.Model,
		vocabulary: vocabulary,
		http:       &http.Client{Timeout: config.Timeout},
		logger:     logger.With().Str("component", "classifier").Str("provider", providerHTTP).Logger(),
	}, nil
}

// Classify sends one image and returns the raw label confidences.
func (c *HTTPClient) Classify(ctx context.Context, image []byte, kind taxonomy.Kind) (taxonomy.Labels, error) {
	start := time.Now()
	labels, err := c.classify(ctx, image, kind)
	metrics.ClassifierDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		c.logger.Debug().Err(err).Str("kind", string(kind)).Msg("Classification call failed")
		return nil, err
	}
	return labels, nil
}

func (c *HTTPClient) classify(ctx context.Context, image []byte, kind taxonomy.Kind) (taxonomy.Labels, error) {
	if len(image) == 0 {
		return nil, c.wrap(kind, fmt.Errorf("empty image: %w", ErrPermanent))
	}

	payload := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]interface{}{{
			"role": "user",
			"content": []map[string]interface{}{
				{"type": "text", "text": c.prompt(kind)},
				{
					"type": "image_url",
					"image_url": map[string]string{
						"url": "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image),
					},
				},
			},
		}},
		"temperature":     0,
		"response_format": map[string]string{"type": "json_object"},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, c.wrap(kind, fmt.Errorf("marshal payload: %v: %w", err, ErrPermanent))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, c.wrap(kind, fmt.Errorf("create request: %v: %w", err, ErrPermanent))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.wrap(kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(kind, resp)
	}

	var result chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, c.wrap(kind, fmt.Errorf("decode response: %v: %w", err, ErrPermanent))
	}
	if len(result.Choices) == 0 {
		return nil, c.wrap(kind, fmt.Errorf("no choices returned: %w", ErrPermanent))
	}

	labels, err := ParseLabels(result.Choices[0].Message.Content)
	if err != nil {
		return nil, c.wrap(kind, err)
	}
	return labels, nil
}

func (c *HTTPClient) prompt(kind taxonomy.Kind) string {
	names := make([]string, 0)
	for _, l := range c.vocabulary.Labels(kind) {
		names = append(names, string(l))
	}

	subject := "a webcam frame of a person working at a computer"
	if kind == taxonomy.KindScreen {
		subject = "a screenshot of a computer screen"
	}

	return fmt.Sprintf(
		"You are given %s. For each of the labels [%s] estimate the confidence in [0,1] "+
			"that it applies. Reply with a single JSON object mapping label to confidence and nothing else.",
		subject, strings.Join(names, ", "))
}

func (c *HTTPClient) parseError(kind taxonomy.Kind, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	return &Error{
		Kind:       string(kind),
		Provider:   providerHTTP,
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}

func (c *HTTPClient) wrap(kind taxonomy.Kind, err error) error {
	return &Error{Kind: string(kind), Provider: providerHTTP, Err: err}
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// ParseLabels decodes a model reply into label confidences. Markdown code
// fences around the JSON object are tolerated.
func ParseLabels(content string) (taxonomy.Labels, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var raw map[string]float64
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("malformed label object %q: %v: %w", truncate(content, 120), err, ErrPermanent)
	}

	labels := make(taxonomy.Labels, len(raw))
	for name, conf := range raw {
		labels[taxonomy.Label(name)] = conf
	}
	return labels, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

var _ Client = (*HTTPClient)(nil)
