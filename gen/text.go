// Package gen implements the generation adapters: marketing copy via the
// Gemini API and product images via Vertex AI Imagen.  Failures of every
// flavor (network, quota, content policy) surface as plain errors; the
// lifecycle engine treats them uniformly as "generation unavailable".
package gen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmoiron/jsonq"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com"

// postPrompt is the copywriting brief.  Posts are for a Georgian audience,
// so the output language is pinned.
const postPrompt = `Write an engaging Facebook post about organic %s.

Requirements:
- Language: Georgian only
- Tone: friendly
- Length: at most 300 characters
- Cover: health benefits, natural origin, what makes this vinegar special,
  and a call to action
- Use fitting emoji

No hashtags. Do not write "Title:" or "Post:" headers, start directly with
the text. Write so that people want to buy the product.`

// A Gemini generates post text through the generativelanguage REST API.
type Gemini struct {
	APIKey string
	Model  string

	// BaseURL and Client are overridable for tests.
	BaseURL string
	Client  *http.Client
}

// NewGemini returns a text generator using the given key and model.
func NewGemini(apiKey, model string) *Gemini {
	return &Gemini{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: geminiBaseURL,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// GeneratePost generates a marketing post about subject.
func (g *Gemini) GeneratePost(ctx context.Context, subject string) (string, error) {
	prompt := fmt.Sprintf(postPrompt, subject)

	body := map[string]any{
		"contents": []any{
			map[string]any{
				"parts": []any{map[string]any{"text": prompt}},
			},
		},
		"generationConfig": map[string]any{
			"maxOutputTokens": 512,
		},
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		g.BaseURL, g.Model, g.APIKey)

	data, err := postJSON(ctx, g.Client, url, body)
	if err != nil {
		return "", err
	}

	jq := jsonq.NewQuery(data)
	text, err := jq.String("candidates", "0", "content", "parts", "0", "text")
	if err != nil {
		return "", fmt.Errorf("no text in gemini response: %w", err)
	}
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return "", fmt.Errorf("gemini returned an empty post")
	}
	return text, nil
}

// postJSON posts body as JSON and decodes the response into a generic map
// for jsonq extraction.
func postJSON(ctx context.Context, client *http.Client, url string, body any) (map[string]interface{}, error) {
	req, err := marshalRequest(ctx, url, body)
	if err != nil {
		return nil, err
	}
	return doJSON(client, req)
}

func marshalRequest(ctx context.Context, url string, body any) (*http.Request, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// doJSON runs req and decodes the response.  Non-2xx responses become
// errors carrying a slice of the body, which upstream treats as the opaque
// failure reason.
func doJSON(client *http.Client, req *http.Request) (map[string]interface{}, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var data map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return data, nil
}
