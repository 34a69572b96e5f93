package gen

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/jsonq"
)

const imagenModel = "imagegeneration@006"

// imagePrompt is in English; the image model works best that way even
// though the posts themselves are Georgian.
const imagePrompt = `Professional product photography of a bottle of organic %s,
rustic wooden table, soft natural light, fresh fruit beside the bottle,
square composition, no text, no watermark`

// An Imagen generates product images through the Vertex AI predict API
// and writes them under MediaPath.
type Imagen struct {
	Project  string
	Location string

	// MediaPath is the directory generated images are written to.
	MediaPath string

	// TokenSource returns a bearer token for the Vertex endpoint.
	TokenSource func(ctx context.Context) (string, error)

	// BaseURL and Client are overridable for tests.
	BaseURL string
	Client  *http.Client
}

// NewImagen returns an image generator for the given project/location
// writing images into mediaPath.
func NewImagen(project, location, mediaPath string, tokens func(ctx context.Context) (string, error)) *Imagen {
	return &Imagen{
		Project:     project,
		Location:    location,
		MediaPath:   mediaPath,
		TokenSource: tokens,
		BaseURL:     fmt.Sprintf("https://%s-aiplatform.googleapis.com", location),
		Client:      &http.Client{Timeout: 120 * time.Second},
	}
}

// GenerateImage generates a square marketing image for subject and returns
// the path it was written to.
func (g *Imagen) GenerateImage(ctx context.Context, subject string) (string, error) {
	body := map[string]any{
		"instances": []any{
			map[string]any{"prompt": fmt.Sprintf(imagePrompt, subject)},
		},
		"parameters": map[string]any{
			"sampleCount": 1,
			"aspectRatio": "1:1",
		},
	}

	url := fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		g.BaseURL, g.Project, g.Location, imagenModel)

	req := func(ctx context.Context) (map[string]interface{}, error) {
		return postJSON(ctx, g.Client, url, body)
	}

	// Vertex wants a bearer token; tests run without one
	if g.TokenSource != nil {
		token, err := g.TokenSource(ctx)
		if err != nil {
			return "", fmt.Errorf("getting access token: %w", err)
		}
		req = func(ctx context.Context) (map[string]interface{}, error) {
			return postJSONAuth(ctx, g.Client, url, body, token)
		}
	}

	data, err := req(ctx)
	if err != nil {
		return "", err
	}

	jq := jsonq.NewQuery(data)
	encoded, err := jq.String("predictions", "0", "bytesBase64Encoded")
	if err != nil {
		return "", fmt.Errorf("no image in predict response: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding image: %w", err)
	}

	if err := os.MkdirAll(g.MediaPath, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(g.MediaPath, uuid.NewString()+".png")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// postJSONAuth is postJSON with a bearer token attached.
func postJSONAuth(ctx context.Context, client *http.Client, url string, body any, token string) (map[string]interface{}, error) {
	// small wrapper: reuse postJSON's plumbing by injecting the header
	// through a transport-free request here instead
	raw, err := marshalRequest(ctx, url, body)
	if err != nil {
		return nil, err
	}
	raw.Header.Set("Authorization", "Bearer "+token)
	return doJSON(client, raw)
}
