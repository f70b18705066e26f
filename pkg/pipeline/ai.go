package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/time/rate"

	"github.com/leapstack-labs/inspector/pkg/core"
)

// AIInput selects the extraction endpoint.
type AIInput string

// AI extraction inputs.
const (
	AIInputHTML  AIInput = "html"
	AIInputEmail AIInput = "email"
	AIInputPDF   AIInput = "pdf"
)

// AIExtractor extracts one record from a document with the external AI service.
type AIExtractor interface {
	ExtractAI(ctx context.Context, input AIInput, content string, t *core.Template) (core.Record, error)
}

// AI client defaults.
const (
	defaultAIRate    = 2.0
	defaultAIBurst   = 1
	defaultAITimeout = 60 * time.Second
	maxErrorBody     = 4 << 10
)

// AIClientConfig configures an AIClient.
type AIClientConfig struct {
	Endpoint string
	APIKey   string
	// Rate is the sustained request rate per second.
	Rate    float64
	Burst   int
	Timeout time.Duration
	// HTTPClient overrides the default client, for tests.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// AIClient calls {endpoint}/api/extract/{input}-ai.
type AIClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

var _ AIExtractor = (*AIClient)(nil)

// NewAIClient creates an AIClient.
func NewAIClient(cfg AIClientConfig) *AIClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r, burst, timeout := cfg.Rate, cfg.Burst, cfg.Timeout
	if r <= 0 {
		r = defaultAIRate
	}
	if burst <= 0 {
		burst = defaultAIBurst
	}
	if timeout <= 0 {
		timeout = defaultAITimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &AIClient{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Limit(r), burst),
		logger:     logger,
	}
}

type aiResponse struct {
	Success          bool           `json:"success"`
	Data             map[string]any `json:"data"`
	Error            string         `json:"error"`
	FieldsWithValues int            `json:"fieldsWithValues"`
	FieldsExtracted  int            `json:"fieldsExtracted"`
}

// AIError is a failed AI extraction call.
type AIError struct {
	Input  AIInput
	Status int
	Msg    string
}

func (e *AIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("ai %s extraction failed: HTTP %d: %s", e.Input, e.Status, e.Msg)
	}
	return fmt.Sprintf("ai %s extraction failed: %s", e.Input, e.Msg)
}

// payload builds the request body for an input kind. HTML is also sent as
// markdown, which the service prefers for long pages.
func payload(input AIInput, content string, t *core.Template) (map[string]any, error) {
	body := map[string]any{"template": t}
	switch input {
	case AIInputHTML:
		body["html"] = content
		md, err := htmltomarkdown.ConvertString(content)
		if err != nil {
			return nil, fmt.Errorf("failed to convert html to markdown: %w", err)
		}
		body["markdown"] = md
	case AIInputEmail:
		body["email_content"] = content
	case AIInputPDF:
		body["text"] = content
	default:
		return nil, fmt.Errorf("unknown ai input %q", input)
	}
	return body, nil
}

// ExtractAI posts a document to the service and returns the record it extracted.
func (c *AIClient) ExtractAI(ctx context.Context, input AIInput, content string, t *core.Template) (core.Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	body, err := payload(input, content, t)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/extract/%s-ai", c.endpoint, input)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ai request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &AIError{Input: input, Status: resp.StatusCode, Msg: strings.TrimSpace(string(msg))}
	}

	var out aiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode ai response: %w", err)
	}
	if !out.Success {
		return nil, &AIError{Input: input, Msg: out.Error}
	}

	c.logger.Debug("ai extraction complete",
		"input", input,
		"fields_with_values", out.FieldsWithValues,
		"fields_extracted", out.FieldsExtracted)
	return core.Record(out.Data), nil
}
