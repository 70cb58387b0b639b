// Package index talks to the external search index that chunks are
// submitted to and retrieved from.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the hosted index API.
const DefaultBaseURL = "https://api.groundx.ai/api/v1"

// RetryableError marks a transient index failure (rate limit or server error).
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable index error (status %d): %s", e.StatusCode, e.Message)
}

// Metadata is attached to each submitted document and returned with
// search results.
type Metadata struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	PageID     string `json:"page_id,omitempty"`
	ChunkHash  string `json:"chunk_hash,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
}

// Document references one stored chunk file.
type Document struct {
	FileName string
	FilePath string
	Metadata Metadata
}

// Result is one search hit.
type Result struct {
	Text     string
	Title    string
	URL      string
	FileName string
	Score    float64
}

// SearchResponse holds the hits and the aggregated context text.
type SearchResponse struct {
	Text    string
	Results []Result
}

// Client communicates with the index HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	bucketID   int
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, bucketID int, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		bucketID: bucketID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type ingestMetadata struct {
	BucketID   int      `json:"bucketId"`
	FileName   string   `json:"fileName"`
	FileType   string   `json:"fileType"`
	SearchData Metadata `json:"searchData"`
}

// Submit uploads a chunk file for ingestion.
func (c *Client) Submit(ctx context.Context, doc Document) error {
	data, err := os.ReadFile(doc.FilePath)
	if err != nil {
		return fmt.Errorf("read %s: %w", doc.FileName, err)
	}

	meta, err := json.Marshal([]ingestMetadata{{
		BucketID:   c.bucketID,
		FileName:   doc.FileName,
		FileType:   strings.TrimPrefix(filepath.Ext(doc.FileName), "."),
		SearchData: doc.Metadata,
	}})
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="blob"; filename=%q`, doc.FileName)},
		"Content-Type":        {"application/json"},
	})
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("write form file: %w", err)
	}
	if err := mw.WriteField("metadata", string(meta)); err != nil {
		return fmt.Errorf("write form metadata: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ingest/documents/local", &body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("submit %s: %w", doc.FileName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return statusError("submit "+doc.FileName, resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Search struct {
		Text    string `json:"text"`
		Results []struct {
			Text       string         `json:"text"`
			FileName   string         `json:"fileName"`
			Score      float64        `json:"score"`
			SearchData map[string]any `json:"searchData"`
		} `json:"results"`
	} `json:"search"`
}

// Search queries the bucket for content relevant to query.
func (c *Client) Search(ctx context.Context, query string) (*SearchResponse, error) {
	body, err := json.Marshal(searchRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	u := c.baseURL + "/search/" + strconv.Itoa(c.bucketID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return &SearchResponse{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("search", resp)
	}

	var raw searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := &SearchResponse{Text: raw.Search.Text}
	for _, r := range raw.Search.Results {
		out.Results = append(out.Results, Result{
			Text:     r.Text,
			Title:    stringField(r.SearchData, "title"),
			URL:      stringField(r.SearchData, "url"),
			FileName: r.FileName,
			Score:    r.Score,
		})
	}
	return out, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func statusError(op string, resp *http.Response) error {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, string(respBody))
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
