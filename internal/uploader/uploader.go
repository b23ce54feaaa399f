package uploader

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	apperrors "github.com/linkpulse/collector/internal/errors"
)

const requestTimeout = 60 * time.Second

// Client ships captured analytics files and metadata to the fixed ingestion
// endpoints. Delivery is best-effort; the caller owns retries.
type Client struct {
	httpClient *http.Client
	profileURL string
	postURL    string
	summaryURL string
}

// NewClient creates an upload client for the given endpoints.
func NewClient(profileURL, postURL, summaryURL string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		profileURL: profileURL,
		postURL:    postURL,
		summaryURL: summaryURL,
	}
}

// UploadProfileExport ships the exported workbook for the personal or
// company flow as multipart form data {Email, file}.
func (c *Client) UploadProfileExport(ctx context.Context, email, filename string, data []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("Email", email); err != nil {
		return apperrors.Upload("failed to build upload form").WithCause(err)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return apperrors.Upload("failed to build upload form").WithCause(err)
	}
	if _, err := part.Write(data); err != nil {
		return apperrors.Upload("failed to build upload form").WithCause(err)
	}
	if err := writer.Close(); err != nil {
		return apperrors.Upload("failed to build upload form").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.profileURL, &body)
	if err != nil {
		return apperrors.Upload("failed to build upload request").WithCause(err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

// postPayload is the JSON body of a per-post analytics upload.
type postPayload struct {
	UserEmail string `json:"user_email"`
	File      string `json:"file"`
}

// UploadPostAnalytics ships one captured per-post analytics file as JSON
// {user_email, base64 file}.
func (c *Client) UploadPostAnalytics(ctx context.Context, email string, data []byte) error {
	payload := postPayload{
		UserEmail: email,
		File:      base64.StdEncoding.EncodeToString(data),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Upload("failed to encode post payload").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.postURL, bytes.NewReader(body))
	if err != nil {
		return apperrors.Upload("failed to build upload request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// HealthMetric is one per-metric entry of the analytics summary.
type HealthMetric struct {
	Metric         string  `json:"metric"`
	Recommendation string  `json:"recommendation"`
	Trend          string  `json:"trend"`
	Percentage     float64 `json:"percentage"`
}

// Summary is the read-only analytics summary served to the dashboard.
type Summary struct {
	HealthData     []HealthMetric `json:"healthdata"`
	AdvancedReport string         `json:"advancedreport"`
}

// FetchSummary retrieves the analytics summary for the given account.
func (c *Client) FetchSummary(ctx context.Context, email string) (*Summary, error) {
	body, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return nil, apperrors.Upload("failed to encode summary request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.summaryURL, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Upload("failed to build summary request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Upload("summary request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.Upload(fmt.Sprintf("summary endpoint returned status %d", resp.StatusCode))
	}

	var summary Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, apperrors.Upload("failed to decode summary response").WithCause(err)
	}
	return &summary, nil
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Upload("upload request failed").WithCause(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.Upload(fmt.Sprintf("upload endpoint returned status %d", resp.StatusCode)).
			WithDetails(map[string]any{"url": req.URL.String(), "status": resp.StatusCode})
	}
	return nil
}
