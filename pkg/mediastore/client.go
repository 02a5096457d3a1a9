package mediastore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lumenfolio/portal-backend/pkg/config"
	"github.com/lumenfolio/portal-backend/pkg/logger"
)

const pingTimeout = 5 * time.Second

// UploadResult mirrors the media service's upload response.
type UploadResult struct {
	ID              string   `json:"id"`
	PermanentURL    string   `json:"permanent_url"`
	ThumbnailURL    *string  `json:"thumbnail_url,omitempty"`
	Width           *int     `json:"width,omitempty"`
	Height          *int     `json:"height,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	Pages           *int     `json:"pages,omitempty"`
	Format          string   `json:"format"`
	SizeBytes       int64    `json:"size_bytes"`
}

// Client talks to the external media processing service over HTTP. The
// service owns object storage and transcoding; this client only moves bytes.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxUpload  int64
}

// Pinger exposes the health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewClient validates the configuration and verifies the media service is reachable.
func NewClient(ctx context.Context, cfg config.MediaStoreConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("media store base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parsing media store base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxUpload:  int64(cfg.MaxUploadMB) * 1024 * 1024,
	}

	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("media store health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "media store client initialized")
	}

	return client, nil
}

// Upload sends raw bytes to the media service and returns the stored asset metadata.
func (c *Client) Upload(ctx context.Context, data io.Reader, folder, name string) (*UploadResult, error) {
	if c == nil || c.httpClient == nil {
		return nil, errors.New("media store client not initialized")
	}
	if name == "" {
		return nil, errors.New("file name is required")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("folder", folder); err != nil {
		return nil, fmt.Errorf("writing folder field: %w", err)
	}
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}

	var reader io.Reader = data
	if c.maxUpload > 0 {
		reader = io.LimitReader(data, c.maxUpload+1)
	}
	written, err := io.Copy(part, reader)
	if err != nil {
		return nil, fmt.Errorf("copying upload bytes: %w", err)
	}
	if c.maxUpload > 0 && written > c.maxUpload {
		return nil, fmt.Errorf("upload exceeds %d byte limit", c.maxUpload)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/assets", body)
	if err != nil {
		return nil, fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("uploading to media store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("media store upload returned status %d", resp.StatusCode)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	return &result, nil
}

// Fetch streams the bytes behind a previously issued permanent URL. The caller
// owns the returned body and must close it.
func (c *Client) Fetch(ctx context.Context, assetURL string) (io.ReadCloser, error) {
	if c == nil || c.httpClient == nil {
		return nil, errors.New("media store client not initialized")
	}
	if strings.TrimSpace(assetURL) == "" {
		return nil, errors.New("asset url is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building fetch request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching asset: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("media store fetch returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// Delete removes a stored asset. Callers treat failures as non-fatal.
func (c *Client) Delete(ctx context.Context, assetID string) error {
	if c == nil || c.httpClient == nil {
		return errors.New("media store client not initialized")
	}
	if strings.TrimSpace(assetID) == "" {
		return errors.New("asset id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/assets/"+url.PathEscape(assetID), nil)
	if err != nil {
		return fmt.Errorf("building delete request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deleting asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("media store delete returned status %d", resp.StatusCode)
	}
	return nil
}

// Ping performs a shallow health check against the media service.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.httpClient == nil {
		return errors.New("media store client not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("building ping request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pinging media store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("media store ping returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
