package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/aitutor/internal/llm/prompts"
	"github.com/pavelanni/aitutor/internal/model"
)

// ErrInvalidQuiz is returned when the model's quiz does not have the
// expected shape.
var ErrInvalidQuiz = errors.New("invalid quiz")

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping checks that the API is reachable by listing models.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM ping: %w", err)
	}
	return nil
}

func (c *Client) complete(ctx context.Context, prompt string, temperature float32, jsonOut bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
	}
	if jsonOut {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return raw, nil
}

// Answer generates a personalized answer to a student question.
func (c *Client) Answer(ctx context.Context, data prompts.AnswerData) (string, error) {
	prompt, err := prompts.BuildAnswerPrompt(data)
	if err != nil {
		return "", err
	}
	answer, err := c.complete(ctx, prompt, 0.7, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// Quiz generates one multiple-choice question on a topic.
func (c *Client) Quiz(ctx context.Context, data prompts.QuizData) (*model.QuizPayload, error) {
	prompt, err := prompts.BuildQuizPrompt(data)
	if err != nil {
		return nil, err
	}
	raw, err := c.complete(ctx, prompt, 0.7, true)
	if err != nil {
		return nil, err
	}
	return ParseQuiz(raw)
}

// StudyPlan generates a Markdown study plan for the given weak topics.
func (c *Client) StudyPlan(ctx context.Context, data prompts.StudyPlanData) (string, error) {
	prompt, err := prompts.BuildStudyPlanPrompt(data)
	if err != nil {
		return "", err
	}
	plan, err := c.complete(ctx, prompt, 0.7, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(plan), nil
}

// ParseQuiz decodes a quiz from model output, tolerating a surrounding
// markdown code fence. The question must have at least two distinct options
// and the correct answer must be one of them.
func ParseQuiz(raw string) (*model.QuizPayload, error) {
	content := strings.TrimSpace(raw)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var q model.QuizPayload
	if err := json.Unmarshal([]byte(content), &q); err != nil {
		return nil, fmt.Errorf("%w: parse: %v (raw: %s)", ErrInvalidQuiz, err, raw)
	}
	if strings.TrimSpace(q.Question) == "" {
		return nil, fmt.Errorf("%w: empty question", ErrInvalidQuiz)
	}
	if len(q.Options) < 2 {
		return nil, fmt.Errorf("%w: need at least two options, got %d", ErrInvalidQuiz, len(q.Options))
	}
	seen := make(map[string]bool, len(q.Options))
	for _, o := range q.Options {
		if seen[o] {
			return nil, fmt.Errorf("%w: duplicate option %q", ErrInvalidQuiz, o)
		}
		seen[o] = true
	}
	if !q.HasOption(q.CorrectAnswer) {
		return nil, fmt.Errorf("%w: correct answer %q is not an option", ErrInvalidQuiz, q.CorrectAnswer)
	}
	q.Topic = ""
	return &q, nil
}
