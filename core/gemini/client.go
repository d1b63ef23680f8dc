package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"vqagen/models"
)

// DefaultBaseURL is the public Generative Language endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// Client speaks the generateContent REST surface. One instance is shared by
// all workers; the credential comes in per call.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient builds a client against the given base URL (empty selects the
// public endpoint).
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: newHTTPClient(),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Generate posts one multimodal prompt under the given key. The context
// carries the per-call deadline. Failures come back as classified
// *models.APIError values.
func (c *Client) Generate(ctx context.Context, key string, req *models.Request) (*models.CallOutput, error) {
	body, err := c.buildBody(req)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", key)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, wrapTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTransportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(resp.StatusCode, raw)
	}

	var parsed GenerateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, models.NewAPIError(models.ErrKindOther, resp.StatusCode, fmt.Sprintf("malformed response: %v", err))
	}
	return extractOutput(&parsed)
}

func (c *Client) buildBody(req *models.Request) (*GenerateRequest, error) {
	data, mimeType, err := readImage(req.ImagePath)
	if err != nil {
		return nil, err
	}
	return &GenerateRequest{
		Contents: []Content{{
			Role: "user",
			Parts: []Part{
				{Text: req.Prompt},
				{InlineData: &InlineData{MimeType: mimeType, Data: data}},
			},
		}},
		GenerationConfig: &GenerationConfig{
			Temperature:     req.Generation.Temperature,
			TopP:            req.Generation.TopP,
			TopK:            req.Generation.TopK,
			MaxOutputTokens: req.Generation.MaxOutputTokens,
		},
		SafetySettings: defaultSafetySettings,
	}, nil
}

func extractOutput(resp *GenerateResponse) (*models.CallOutput, error) {
	if len(resp.Candidates) == 0 {
		reason := "no candidates in response"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + resp.PromptFeedback.BlockReason
		}
		return nil, models.NewAPIError(models.ErrKindOther, http.StatusOK, reason)
	}

	cand := resp.Candidates[0]
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return nil, models.NewAPIError(models.ErrKindOther, http.StatusOK,
			fmt.Sprintf("empty candidate text (finish reason %q)", cand.FinishReason))
	}

	out := &models.CallOutput{Text: sb.String(), FinishReason: cand.FinishReason}
	if resp.UsageMetadata != nil {
		out.Usage = &models.TokenUsage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	return out, nil
}

func readImage(path string) (data string, mimeType string, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read image %q: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(raw), mimeTypeFor(path), nil
}

// mimeTypeFor maps the file extension; the API rejects inline data without a
// MIME type.
func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
