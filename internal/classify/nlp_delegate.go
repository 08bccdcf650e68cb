package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// NLPDelegate calls an external NLP service to refine classifications. The
// service accepts document text and answers with its own type and
// confidence.
type NLPDelegate struct {
	baseURL string
	client  *http.Client
}

// NewNLPDelegate points the delegate at an NLP service base URL, e.g.
// "http://localhost:5000".
func NewNLPDelegate(baseURL string, timeout time.Duration) *NLPDelegate {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NLPDelegate{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type nlpRequest struct {
	Text        string `json:"text"`
	InitialType string `json:"initial_type"`
}

type nlpResponse struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Refine posts the text to the service's /process endpoint. The classifier
// decides whether the returned verdict is confident enough to adopt.
func (d *NLPDelegate) Refine(ctx context.Context, text string, initial Classification) (Classification, bool, error) {
	body, err := json.Marshal(nlpRequest{Text: text, InitialType: initial.Type})
	if err != nil {
		return Classification{}, false, fmt.Errorf("encoding nlp request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/process", bytes.NewReader(body))
	if err != nil {
		return Classification{}, false, fmt.Errorf("building nlp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return Classification{}, false, fmt.Errorf("calling nlp service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Classification{}, false, fmt.Errorf("nlp service returned status %d", resp.StatusCode)
	}
	var out nlpResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Classification{}, false, fmt.Errorf("decoding nlp response: %w", err)
	}
	if out.Type == "" {
		return Classification{}, false, nil
	}
	return Classification{Type: out.Type, Confidence: out.Confidence, Rule: "nlp"}, true, nil
}
