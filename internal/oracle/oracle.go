// Package oracle asks an external language-model planning service to lay out
// a user's day. Its output is an untrusted proposal: the replanner validates
// every placement before anything is committed.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/karanmehta/agenda/internal/model"
	"github.com/karanmehta/agenda/internal/temporal"
)

// ErrUnparseable means the service returned nothing that decodes as a
// schedule. The day is left untouched; this is reported, not fatal.
var ErrUnparseable = errors.New("oracle returned no usable schedule")

// Placement is one proposed slot assignment.
type Placement struct {
	TaskID    int64  `json:"task_id"`
	StartTime string `json:"start_time"` // HH:MM:SS
	EndTime   string `json:"end_time"`   // HH:MM:SS
	Reason    string `json:"reason"`
}

// Config holds planner service configuration.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client talks to an OpenAI-compatible chat-completion endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-5-mini"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

const systemPromptFormat = `You are an expert daily planner. Your goal is to create an optimal schedule for the user for TODAY (%s).

RULES:
1. You will receive a list of items (tasks, meetings, todos).
2. Items with status 'meeting' are FIXED constraints. YOU CANNOT MOVE THEM.
3. Items with status 'task' (even if they have a time) or 'todo' are FLEXIBLE. You SHOULD reschedule them to:
   - Avoid overlaps with meetings.
   - Prioritize 'urgent'/'high' tasks.
4. If a task has a pre-assigned time but creates a conflict or is low priority, MOVE IT.
5. Ensure ABSOLUTELY NO OVERLAPS in the final schedule.

OUTPUT FORMAT:
Return a valid JSON array of objects. Each object must have:
- task_id: int
- start_time: "HH:MM:SS" (24h format)
- end_time: "HH:MM:SS" (24h format)
- reason: str explaining why this time was picked

Only return items that are scheduled for today.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// PlanDay submits the full item list (fixed items included, so the planner
// can route around them) and returns the proposed placements.
func (c *Client) PlanDay(ctx context.Context, today temporal.Date, items []model.ScheduleItem) ([]Placement, error) {
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal items: %w", err)
	}

	reqBody := chatRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPromptFormat, today)},
			{Role: "user", Content: fmt.Sprintf("Here are my items for today: %s. Please generate a schedule.", itemsJSON)},
		},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("planner request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("planner returned status %d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("decode planner response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, ErrUnparseable
	}

	return ParseProposal(chat.Choices[0].Message.Content)
}

// ParseProposal decodes the model's reply, tolerating a Markdown code fence
// around the JSON array.
func ParseProposal(content string) ([]Placement, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var placements []Placement
	if err := json.Unmarshal([]byte(content), &placements); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return placements, nil
}
