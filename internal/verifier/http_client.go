package verifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPClient talks JSON over HTTP to the remote verification service.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient builds the adapter from config.
func NewHTTPClient(cfg Config, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type uploadRequest struct {
	Filename   string      `json:"filename"`
	Data       string      `json:"data"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

type uploadResponse struct {
	ID              string `json:"id"`
	Rejected        bool   `json:"rejected"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// Upload sends the document body and returns the remote document id. A
// document-level rejection surfaces as a KindRejected error, distinct from
// transport failures.
func (c *HTTPClient) Upload(ctx context.Context, filename string, data []byte, attrs []Attribute) (string, error) {
	payload := uploadRequest{
		Filename:   filename,
		Data:       base64.StdEncoding.EncodeToString(data),
		Attributes: attrs,
	}
	var resp uploadResponse
	if err := c.do(ctx, http.MethodPost, "/v1/documents", payload, &resp, "upload"); err != nil {
		return "", err
	}
	if resp.Rejected {
		return "", &Error{Kind: KindRejected, Op: "upload", Message: resp.RejectionReason}
	}
	if resp.ID == "" {
		return "", &Error{Kind: KindApplication, Op: "upload", Message: "remote returned no document id"}
	}
	return resp.ID, nil
}

// SetAttributes replaces the document attributes on the remote side.
func (c *HTTPClient) SetAttributes(ctx context.Context, externalID string, attrs []Attribute) error {
	path := fmt.Sprintf("/v1/documents/%s/attributes", externalID)
	payload := map[string]any{"attributes": attrs}
	return c.do(ctx, http.MethodPatch, path, payload, nil, "set_attributes")
}

// StartCheck asks the remote service to begin checking the document.
func (c *HTTPClient) StartCheck(ctx context.Context, externalID string, excludedSections string) error {
	path := fmt.Sprintf("/v1/documents/%s/check", externalID)
	payload := map[string]any{}
	if excludedSections != "" {
		payload["excluded_sections"] = strings.Split(excludedSections, ",")
	}
	return c.do(ctx, http.MethodPost, path, payload, nil, "start_check")
}

// PollStatus fetches the current check state.
func (c *HTTPClient) PollStatus(ctx context.Context, externalID string) (*StatusResult, error) {
	path := fmt.Sprintf("/v1/documents/%s/status", externalID)
	var result StatusResult
	if err := c.do(ctx, http.MethodGet, path, nil, &result, "poll_status"); err != nil {
		return nil, err
	}
	return &result, nil
}

// FetchReport retrieves the finished report in the same shape as a ready poll.
func (c *HTTPClient) FetchReport(ctx context.Context, externalID string) (*StatusResult, error) {
	path := fmt.Sprintf("/v1/documents/%s/report", externalID)
	var result StatusResult
	if err := c.do(ctx, http.MethodGet, path, nil, &result, "fetch_report"); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetIndexFlag adds the document to, or removes it from, the searchable index.
func (c *HTTPClient) SetIndexFlag(ctx context.Context, externalID string, addToIndex bool) error {
	path := fmt.Sprintf("/v1/documents/%s/index", externalID)
	payload := map[string]any{"in_index": addToIndex}
	return c.do(ctx, http.MethodPut, path, payload, nil, "set_index_flag")
}

// GetDocumentInfo reports whether the remote still holds the document in its
// index.
func (c *HTTPClient) GetDocumentInfo(ctx context.Context, externalID string) (*DocumentInfo, error) {
	path := fmt.Sprintf("/v1/documents/%s", externalID)
	var info DocumentInfo
	if err := c.do(ctx, http.MethodGet, path, nil, &info, "get_document_info"); err != nil {
		return nil, err
	}
	return &info, nil
}

type remoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload any, dest any, op string) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return &Error{Kind: KindApplication, Op: op, Message: "encode request", Err: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Kind: KindApplication, Op: op, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Message: "request failed", Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	c.logger.Debug("verifier_call",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode >= 500 {
		return &Error{Kind: KindTransport, Op: op, Message: fmt.Sprintf("remote fault (%d)", resp.StatusCode)}
	}
	if resp.StatusCode == http.StatusUnsupportedMediaType || resp.StatusCode == http.StatusUnprocessableEntity {
		return &Error{Kind: KindRejected, Op: op, Message: readRemoteMessage(resp.Body)}
	}
	if resp.StatusCode >= 400 {
		return &Error{Kind: KindApplication, Op: op, Message: readRemoteMessage(resp.Body)}
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return &Error{Kind: KindApplication, Op: op, Message: "decode response", Err: err}
	}
	return nil
}

func readRemoteMessage(r io.Reader) string {
	var remote remoteError
	if err := json.NewDecoder(r).Decode(&remote); err != nil || remote.Message == "" {
		return "remote rejected the request"
	}
	return remote.Message
}
