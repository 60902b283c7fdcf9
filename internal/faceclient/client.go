package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Client calls the face recognition microservice. The service only detects
// faces and produces embeddings; the match decision is made here with
// Matcher so the threshold stays in our configuration.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
	Matcher Matcher
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool, matcher Matcher) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		Matcher: matcher,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // Face processing can take time
		},
	}
}

type detectResponse struct {
	FacesDetected int `json:"faces_detected"`
}

type representResponse struct {
	Embedding     []float64 `json:"embedding"`
	FacesDetected int       `json:"faces_detected"`
}

// DetectFaceCount returns how many faces the service finds in the image at path.
func (c *Client) DetectFaceCount(ctx context.Context, path string) (int, error) {
	if c.Skip {
		return 1, nil
	}
	var out detectResponse
	if err := c.postImage(ctx, "/detect", path, &out); err != nil {
		return 0, err
	}
	return out.FacesDetected, nil
}

// ExtractEncoding returns the embedding of the single face in the image at path.
func (c *Client) ExtractEncoding(ctx context.Context, path string) ([]float64, error) {
	if c.Skip {
		return mockEmbedding(), nil
	}
	var out representResponse
	if err := c.postImage(ctx, "/represent", path, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("no face detected in image")
	}
	return out.Embedding, nil
}

// Verify embeds the capture and compares it with a stored reference
// embedding. A mismatch is not an error; the score is returned either way.
func (c *Client) Verify(ctx context.Context, reference []float64, capturePath string) (bool, float64, error) {
	if c.Skip {
		return true, 0.95, nil
	}
	if len(reference) == 0 {
		return false, 0, fmt.Errorf("empty reference encoding")
	}
	got, err := c.ExtractEncoding(ctx, capturePath)
	if err != nil {
		return false, 0, fmt.Errorf("capture encoding: %w", err)
	}
	matched, score := c.Matcher.Compare(reference, got)
	return matched, score, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}

	return nil
}

func (c *Client) postImage(ctx context.Context, endpoint, path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create form file failed: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("write form file failed: %w", err)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func mockEmbedding() []float64 {
	return []float64{0.1, 0.2, 0.3, 0.4}
}
