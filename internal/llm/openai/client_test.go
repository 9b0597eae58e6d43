package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/expense-auditor/internal/llm"
	"github.com/joseph-ayodele/expense-auditor/internal/llm/openai"
)

func TestClient_CompleteSendsImagePart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string          `json:"role"`
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "vision-model", body.Model)
		require.Len(t, body.Messages, 2)
		assert.Contains(t, string(body.Messages[1].Content), "data:image/png;base64,")

		_, _ = w.Write([]byte(`{"model":"vision-model","choices":[{"message":{"content":"{\"city\":\"Rabat\"}"}}]}`))
	}))
	defer srv.Close()

	c := openai.NewClient(openai.Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "vision-model"}, nil)
	resp, err := c.Complete(context.Background(), llm.InferenceRequest{
		System: "sys",
		User:   "user",
		Image:  &llm.Image{MIMEType: "image/png", Data: []byte("png")},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"city":"Rabat"}`, resp.Text)
	assert.Equal(t, "vision-model", resp.Model)
}

func TestClient_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := openai.NewClient(openai.Config{APIKey: "nope", BaseURL: srv.URL}, nil)
	_, err := c.Complete(context.Background(), llm.InferenceRequest{System: "s", User: "u"})

	var se *llm.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.True(t, strings.Contains(se.Body, "bad key"))
}

func TestClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := openai.NewClient(openai.Config{APIKey: "k", BaseURL: srv.URL}, nil)
	_, err := c.Complete(context.Background(), llm.InferenceRequest{})
	require.Error(t, err)
}
