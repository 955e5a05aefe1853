package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/zombor/belegscanner/internal/capture"
)

// Client talks to the Belegscanner server. It implements the analysis,
// persistence and stats contracts of the capture controller.
type Client struct {
	baseURL  string
	client   *http.Client
	username string
	password string
}

// Option configures a Client
type Option func(*Client)

// WithBasicAuth sends basic auth credentials with every request
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// New creates a Client for the server at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// uploadResponse is the body of a successful POST /upload
type uploadResponse struct {
	Success   bool            `json:"success"`
	ImagePath string          `json:"image_path"`
	Analysis  json.RawMessage `json:"analysis"`
}

// saveResponse is the body of a successful POST /api/receipts
type saveResponse struct {
	Message string         `json:"message"`
	Stats   *capture.Stats `json:"stats"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Analyze uploads a document to the server and returns its field guesses.
// responding is called as soon as the response headers arrive.
func (c *Client) Analyze(ctx context.Context, f capture.File, responding func()) (*capture.Analysis, error) {
	body, contentType, err := multipartBody(f)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/upload", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("uploading document: %w", err)
	}
	defer resp.Body.Close()

	if responding != nil {
		responding()
	}

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	slog.Debug("Document analyzed", "filename", f.Name, "image_path", result.ImagePath)

	return capture.ParseAnalysis(result.Analysis), nil
}

// Save stores a finalized receipt and returns the updated stats
func (c *Client) Save(ctx context.Context, r capture.Record) (*capture.Stats, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshaling receipt: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/receipts", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("saving receipt: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result saveResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding save response: %w", err)
	}
	return result.Stats, nil
}

// Stats fetches the current aggregate stats
func (c *Client) Stats(ctx context.Context) (*capture.Stats, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/stats", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching stats: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var stats capture.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decoding stats: %w", err)
	}
	return &stats, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

// checkStatus turns a non-2xx response into a *capture.ServerError carrying the server's error text
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	var e errorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		slog.Debug("Error response is not JSON", "status", resp.StatusCode, "body", string(body))
	}
	return &capture.ServerError{Status: resp.StatusCode, Message: e.Error}
}

// multipartBody encodes f as the single form field "file"
func multipartBody(f capture.File) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(f.Name)))
	if f.ContentType != "" {
		header.Set("Content-Type", f.ContentType)
	} else {
		header.Set("Content-Type", "application/octet-stream")
	}

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("creating form part: %w", err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, "", fmt.Errorf("writing form part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
