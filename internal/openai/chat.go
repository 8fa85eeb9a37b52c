package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/cloo-solutions/helpdesk/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultChatModel   = openai.GPT4oMini
	DefaultTemperature = float32(0.2)

	doneSentinel   = "[DONE]"
	maxEventSize   = 1 << 20
	maxErrorBody   = 64 << 10
	dataLinePrefix = "data:"
)

// APIError is returned when the chat endpoint answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("OpenAI request failed with status %d: %s", e.StatusCode, e.Body)
}

type ChatConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// ChatClient streams chat completions over server-sent events.
type ChatClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float32
	httpClient  *http.Client
	logger      *zap.Logger
}

func NewChatClient(cfg ChatConfig) *ChatClient {
	c := &ChatClient{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  cfg.HTTPClient,
		logger:      cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultChatModel
	}
	if c.temperature == 0 {
		c.temperature = DefaultTemperature
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// StreamChatCompletion starts a streaming completion. The returned stream must
// be closed by the caller. Cancelling ctx aborts the upstream read.
func (c *ChatClient) StreamChatCompletion(ctx context.Context, req domain.ChatCompletionRequest) (domain.TextStream, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	return newChatStream(resp.Body, c.logger), nil
}

func (c *ChatClient) buildRequest(req domain.ChatCompletionRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}
	temperature := c.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}

	return openai.ChatCompletionRequest{
		Model:       model,
		Temperature: temperature,
		Stream:      true,
		Messages:    messages,
	}
}

// ChatStream decodes an SSE body into text fragments. Malformed events are
// logged and skipped. Close may be called from another goroutine while Recv
// is blocked; every other field belongs to the Recv caller.
type ChatStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	pending []string
	done    bool
	closed  atomic.Bool
	logger  *zap.Logger
}

func newChatStream(body io.ReadCloser, logger *zap.Logger) *ChatStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxEventSize)
	scanner.Split(splitEvents)
	return &ChatStream{body: body, scanner: scanner, logger: logger}
}

// Recv returns the next non-empty text fragment, or io.EOF after the
// sentinel or the end of the body.
func (s *ChatStream) Recv() (string, error) {
	for {
		if s.closed.Load() {
			return "", io.EOF
		}
		if len(s.pending) > 0 {
			next := s.pending[0]
			s.pending = s.pending[1:]
			return next, nil
		}
		if s.done {
			return "", io.EOF
		}

		if !s.scanner.Scan() {
			s.done = true
			if s.closed.Load() {
				return "", io.EOF
			}
			if err := s.scanner.Err(); err != nil {
				return "", fmt.Errorf("failed to read chat stream: %w", err)
			}
			continue
		}
		s.handleEvent(s.scanner.Text())
	}
}

// Close releases the response body, aborting an unfinished stream. A Recv
// blocked on the body returns io.EOF.
func (s *ChatStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.body.Close()
}

func (s *ChatStream) handleEvent(event string) {
	for _, line := range strings.Split(event, "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, dataLinePrefix) {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, dataLinePrefix))
		if payload == "" {
			continue
		}
		if payload == doneSentinel {
			s.done = true
			return
		}

		var chunk openai.ChatCompletionStreamResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			s.logger.Warn("openai.stream.parse_error", zap.Error(err), zap.String("payload", truncate(payload, 256)))
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			s.pending = append(s.pending, content)
		}
	}
}

// splitEvents is a bufio.SplitFunc yielding blank-line separated SSE events.
// A trailing event without a terminator is returned at EOF.
func splitEvents(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	lf := bytes.Index(data, []byte("\n\n"))
	crlf := bytes.Index(data, []byte("\r\n\r\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return crlf + 4, data[:crlf], nil
	case lf >= 0:
		return lf + 2, data[:lf], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
