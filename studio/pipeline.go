package studio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/studiopix/studiopix/models"
)

var errPipelineDown = errors.New("pipeline unreachable")

// PipelineClient talks to the external AI generation service.
type PipelineClient struct {
	BaseURL string
	APIKey  string
	Logger  *logrus.Logger
	client  *http.Client
}

func NewPipelineClient(cfg models.StudioConfig, logger *logrus.Logger) *PipelineClient {
	models.InitPipelineMetrics()
	return &PipelineClient{
		BaseURL: cfg.PipelineURL,
		APIKey:  cfg.PipelineKey,
		Logger:  logger,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// SubmitRequest is what we send the pipeline per generation.
type SubmitRequest struct {
	UUID        string `json:"uuid"`
	ImageURL    string `json:"image_url"`
	Prompt      string `json:"prompt"`
	Background  string `json:"background,omitempty"`
	Clothing    string `json:"clothing,omitempty"`
	Pose        string `json:"pose,omitempty"`
	Branding    string `json:"branding,omitempty"`
	CallbackURL string `json:"callback_url"`
}

type submitResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Submit sends a generation job and returns the pipeline's job ID.
func (p *PipelineClient) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	start := time.Now()
	status, body, err := p.post(ctx, "/v1/generations", payload)
	models.RecordPipelineMetrics("/v1/generations", http.MethodPost, status, err, len(payload), len(body), time.Since(start))
	if err != nil {
		return "", err
	}

	var resp submitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("bad pipeline response: %w", err)
	}
	if status >= 300 || resp.JobID == "" {
		return "", fmt.Errorf("pipeline refused job %s: %s", req.UUID, resp.Message)
	}
	return resp.JobID, nil
}

func (p *PipelineClient) post(ctx context.Context, endpoint string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.Logger.Printf("pipeline %s: %v", endpoint, err)
		return 0, nil, errPipelineDown
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}
