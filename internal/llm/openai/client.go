package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/expense-auditor/internal/llm"
)

var errNoChoices = errors.New("no choices in completion response")

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete implements llm.Inference over chat/completions. Images travel as base64 data URLs.
func (c *Client) Complete(ctx context.Context, req llm.InferenceRequest) (llm.InferenceResponse, error) {
	start := time.Now()

	userContent := []map[string]any{
		{"type": "text", "text": req.User},
	}
	if req.Image != nil {
		userContent = append(userContent, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": dataURL(*req.Image)},
		})
	}

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages": []map[string]any{
			{"role": "system", "content": req.System},
			{"role": "user", "content": userContent},
		},
	}
	if c.cfg.JSONMode {
		body["response_format"] = map[string]any{"type": "json_object"}
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		return llm.InferenceResponse{}, err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return llm.InferenceResponse{}, fmt.Errorf("decode completion response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return llm.InferenceResponse{}, errNoChoices
	}
	model := cc.Model
	if model == "" {
		model = c.cfg.Model
	}
	return llm.InferenceResponse{
		Text:    cc.Choices[0].Message.Content,
		Model:   model,
		Elapsed: time.Since(start),
	}, nil
}

func dataURL(img llm.Image) string {
	mt := img.MIMEType
	if mt == "" {
		mt = "image/png"
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
