package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"server/internal/domain"
)

func TestClientSubmit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected auth header: %s", got)
		}
		if got := r.Header.Get("X-DashScope-Async"); got != "enable" {
			t.Fatalf("expected async submission header, got %q", got)
		}
		var payload submitRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if payload.Input.Prompt != "some directive" {
			t.Fatalf("prompt mismatch: %s", payload.Input.Prompt)
		}
		if payload.Input.BaseImageURL != "https://example.com/in.png" {
			t.Fatalf("image mismatch: %s", payload.Input.BaseImageURL)
		}
		var resp taskEnvelope
		resp.Output.TaskID = "task-123"
		resp.Output.TaskStatus = "PENDING"
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	client := NewClient(Options{APIKey: "test-key", BaseURL: ts.URL})
	job, err := client.Submit(context.Background(), domain.ImageSource{URL: "https://example.com/in.png"}, "some directive", NegativePrompt)
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if job.ID != "task-123" {
		t.Fatalf("unexpected job id: %s", job.ID)
	}
	if job.State != domain.JobQueued {
		t.Fatalf("unexpected state: %s", job.State)
	}
}

func TestClientSubmitInlineBytes(t *testing.T) {
	var captured submitRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		var resp taskEnvelope
		resp.Output.TaskID = "task-456"
		resp.Output.TaskStatus = "RUNNING"
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	client := NewClient(Options{APIKey: "test-key", BaseURL: ts.URL})
	data := []byte{0x89, 0x50, 0x4e, 0x47}
	if _, err := client.Submit(context.Background(), domain.ImageSource{Data: data, MIMEType: "image/png"}, "directive", ""); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if !strings.HasPrefix(captured.Input.BaseImageURL, "data:image/png;base64,") {
		t.Fatalf("expected data uri payload, got %s", captured.Input.BaseImageURL)
	}
}

func TestClientSubmitProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "InvalidParameter", "message": "bad model"})
	}))
	defer ts.Close()

	client := NewClient(Options{APIKey: "test-key", BaseURL: ts.URL})
	_, err := client.Submit(context.Background(), domain.ImageSource{URL: "https://example.com/in.png"}, "directive", "")
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected provider failure, got %v", err)
	}
}

func TestClientSubmitMissingKey(t *testing.T) {
	client := NewClient(Options{})
	if _, err := client.Submit(context.Background(), domain.ImageSource{URL: "https://example.com/in.png"}, "directive", ""); !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected provider failure when api key missing, got %v", err)
	}
}

func TestClientStatus(t *testing.T) {
	cases := []struct {
		provider string
		want     domain.JobState
		output   string
	}{
		{"PENDING", domain.JobQueued, ""},
		{"RUNNING", domain.JobRunning, ""},
		{"SUCCEEDED", domain.JobSucceeded, "https://example.com/out.png"},
		{"FAILED", domain.JobFailed, ""},
		{"CANCELED", domain.JobCanceled, ""},
		{"SOMETHING_NEW", domain.JobUnknown, ""},
	}
	for _, tc := range cases {
		t.Run(tc.provider, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.HasSuffix(r.URL.Path, "/tasks/task-123") {
					t.Fatalf("unexpected path: %s", r.URL.Path)
				}
				var resp taskEnvelope
				resp.Output.TaskStatus = tc.provider
				if tc.output != "" {
					resp.Output.Results = []struct {
						URL string `json:"url"`
					}{{URL: tc.output}}
				}
				_ = json.NewEncoder(w).Encode(resp)
			}))
			defer ts.Close()

			client := NewClient(Options{APIKey: "test-key", BaseURL: ts.URL})
			job, err := client.Status(context.Background(), "task-123")
			if err != nil {
				t.Fatalf("Status error: %v", err)
			}
			if job.State != tc.want {
				t.Fatalf("state mismatch: got %s want %s", job.State, tc.want)
			}
			if job.OutputRef != tc.output {
				t.Fatalf("output mismatch: got %q want %q", job.OutputRef, tc.output)
			}
		})
	}
}
