package scoreclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"time"
)

// ErrStatus is returned for a non-2xx response.
var ErrStatus = errors.New("unexpected status")

// Client talks to a scoring server.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a client with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Health checks that /healthz answers 200.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.get(ctx, "/healthz")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: healthz %d", ErrStatus, resp.StatusCode)
	}
	return nil
}

// Test fetches the default prompt.
func (c *Client) Test(ctx context.Context) (Prompt, error) {
	var p Prompt
	resp, err := c.get(ctx, "/test")
	if err != nil {
		return p, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return p, fmt.Errorf("%w: test %d", ErrStatus, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return p, fmt.Errorf("decode prompt: %w", err)
	}
	return p, nil
}

// Score posts one recording. A non-200 answer is returned as a Result with
// the server's error code, not as an error.
func (c *Client) Score(ctx context.Context, promptID, name string, audio []byte, duration time.Duration) (Result, error) {
	res := Result{File: name}

	body, contentType, err := scoreForm(promptID, name, audio, duration)
	if err != nil {
		return res, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/score", body)
	if err != nil {
		return res, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return res, fmt.Errorf("post score: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	res.Latency = time.Since(start)
	res.Status = resp.StatusCode

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return res, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Code string `json:"code"`
		}
		_ = json.Unmarshal(raw, &e)
		res.Code = e.Code
		return res, nil
	}

	var sr ScoreResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return res, fmt.Errorf("decode score: %w", err)
	}
	res.Response = &sr
	return res, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to service: %w", err)
	}
	return resp, nil
}

// scoreForm builds the multipart body. started_ms is zero and ended_ms is
// the recording length, so the server echoes the length back.
func scoreForm(promptID, name string, audio []byte, duration time.Duration) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"prompt_id", promptID},
		{"started_ms", "0"},
		{"ended_ms", strconv.FormatInt(duration.Milliseconds(), 10)},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write %s: %w", f[0], err)
		}
	}
	fw, err := mw.CreateFormFile("audio", filepath.Base(name))
	if err != nil {
		return nil, "", fmt.Errorf("create audio part: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, "", fmt.Errorf("write audio part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
