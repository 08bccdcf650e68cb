// Package ocr wraps the external OCR service that turns page images into
// text. The pipeline treats the engine as opaque: it sends image bytes and
// receives text with a confidence.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// TextResult is the OCR engine's answer for one page.
type TextResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Engine is the OCR surface the pipeline depends on.
type Engine interface {
	ExtractText(ctx context.Context, image []byte) (*TextResult, error)
}

// Client talks to an OCR service over HTTP. Images are posted as multipart
// form data to /ocr.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the OCR service at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// ExtractText sends the page image and returns the recognized text.
func (c *Client) ExtractText(ctx context.Context, image []byte) (*TextResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "page.jpg")
	if err != nil {
		return nil, fmt.Errorf("building ocr request: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("building ocr request: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("building ocr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr", &body)
	if err != nil {
		return nil, fmt.Errorf("building ocr request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ocr service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ocr service returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out TextResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding ocr response: %w", err)
	}
	return &out, nil
}
