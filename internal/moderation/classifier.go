package moderation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"server/internal/domain"
)

// classifyQuestion reduces the classifier's answer to a boolean: anything that
// is not an unambiguous yes is a rejection.
const classifyQuestion = "Does this image contain exactly one clearly visible real person suitable for a professional headshot? Answer only yes or no."

type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Classifier performs a single multimodal classification call per request.
// It never retries: one authoritative answer per upload.
type Classifier struct {
	httpClient *http.Client
	baseURL    string
	token      string
	model      string
}

func NewClassifier(opts Options) *Classifier {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	model := opts.Model
	if model == "" {
		model = "qwen-vl-max"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Classifier{
		httpClient: client,
		baseURL:    base,
		token:      strings.TrimSpace(opts.APIKey),
		model:      model,
	}
}

type classifyRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []struct {
			Role    string              `json:"role"`
			Content []map[string]string `json:"content"`
		} `json:"messages"`
	} `json:"input"`
}

type classifyResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []map[string]string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Check returns nil when the image contains a permissible subject and wraps
// domain.ErrContentRejected otherwise. Transport failures are not rejections
// and surface as plain errors.
func (c *Classifier) Check(ctx context.Context, image domain.ImageSource) error {
	if c.token == "" {
		return fmt.Errorf("moderation: API key is missing")
	}
	imageValue := strings.TrimSpace(image.URL)
	if imageValue == "" {
		mime := image.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		imageValue = fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(image.Data))
	}

	var payload classifyRequest
	payload.Model = c.model
	msg := struct {
		Role    string              `json:"role"`
		Content []map[string]string `json:"content"`
	}{
		Role: "user",
		Content: []map[string]string{
			{"image": imageValue},
			{"text": classifyQuestion},
		},
	}
	payload.Input.Messages = append(payload.Input.Messages, msg)

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	endpoint := c.baseURL + "/services/aigc/multimodal-generation/generation"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("moderation: classify call: %w", err)
	}
	defer resp.Body.Close()

	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("moderation: decode response (http %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if out.Message != "" {
			return fmt.Errorf("moderation: %s (%s)", out.Message, out.Code)
		}
		return fmt.Errorf("moderation: http %d", resp.StatusCode)
	}

	answer := ""
	if len(out.Output.Choices) > 0 {
		for _, content := range out.Output.Choices[0].Message.Content {
			if text, ok := content["text"]; ok {
				answer = text
				break
			}
		}
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "yes") {
		return fmt.Errorf("%w: image does not contain a permissible subject", domain.ErrContentRejected)
	}
	return nil
}
