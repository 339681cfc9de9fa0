package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"server/internal/domain"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to the asynchronous generation provider. Jobs are started with
// one call and observed with status lookups; the client never cancels or
// mutates a job.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	model      string
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	model := opts.Model
	if model == "" {
		model = "wanx2.1-imageedit"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		token:      strings.TrimSpace(opts.APIKey),
		model:      model,
	}
}

type submitRequest struct {
	Model string `json:"model"`
	Input struct {
		Prompt       string `json:"prompt"`
		BaseImageURL string `json:"base_image_url"`
	} `json:"input"`
	Parameters struct {
		NegativePrompt string `json:"negative_prompt,omitempty"`
		N              int    `json:"n"`
		Watermark      bool   `json:"watermark"`
	} `json:"parameters"`
}

type taskEnvelope struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		Results    []struct {
			URL string `json:"url"`
		} `json:"results"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Submit starts an asynchronous generation job and returns its id along with
// the status the provider reported at submission time.
func (c *Client) Submit(ctx context.Context, image domain.ImageSource, directive, negative string) (domain.Job, error) {
	if c.token == "" {
		return domain.Job{}, fmt.Errorf("%w: generation API key is missing", domain.ErrProviderFailure)
	}

	var payload submitRequest
	payload.Model = c.model
	payload.Input.Prompt = directive
	payload.Input.BaseImageURL = imageValue(image)
	payload.Parameters.NegativePrompt = strings.TrimSpace(negative)
	payload.Parameters.N = 1

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Job{}, err
	}
	endpoint := c.baseURL + "/services/aigc/image2image/image-synthesis"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Job{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-DashScope-Async", "enable")

	var out taskEnvelope
	if err := c.do(req, &out); err != nil {
		return domain.Job{}, err
	}
	if strings.TrimSpace(out.Output.TaskID) == "" {
		return domain.Job{}, fmt.Errorf("%w: submission returned no job id", domain.ErrProviderFailure)
	}
	return domain.Job{ID: out.Output.TaskID, State: mapState(out.Output.TaskStatus)}, nil
}

// Status observes the job. Succeeded jobs carry the output reference.
func (c *Client) Status(ctx context.Context, jobID string) (domain.Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return domain.Job{}, errors.New("imagegen: job id required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks/"+jobID, nil)
	if err != nil {
		return domain.Job{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	var out taskEnvelope
	if err := c.do(req, &out); err != nil {
		return domain.Job{}, err
	}
	job := domain.Job{ID: jobID, State: mapState(out.Output.TaskStatus)}
	if job.State == domain.JobSucceeded && len(out.Output.Results) > 0 {
		job.OutputRef = out.Output.Results[0].URL
	}
	return job, nil
}

func (c *Client) do(req *http.Request, out *taskEnvelope) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response (http %d)", domain.ErrProviderFailure, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg := out.Message
		code := out.Code
		if msg == "" {
			msg = out.Output.Message
			code = out.Output.Code
		}
		if msg != "" {
			return fmt.Errorf("%w: %s (%s)", domain.ErrProviderFailure, msg, code)
		}
		return fmt.Errorf("%w: http %d", domain.ErrProviderFailure, resp.StatusCode)
	}
	return nil
}

func imageValue(image domain.ImageSource) string {
	if url := strings.TrimSpace(image.URL); url != "" {
		return url
	}
	mime := image.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(image.Data))
}

func mapState(status string) domain.JobState {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "PENDING":
		return domain.JobQueued
	case "RUNNING":
		return domain.JobRunning
	case "SUCCEEDED":
		return domain.JobSucceeded
	case "FAILED":
		return domain.JobFailed
	case "CANCELED":
		return domain.JobCanceled
	default:
		return domain.JobUnknown
	}
}
