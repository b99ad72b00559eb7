// Package transport implements the HTTP client side of the upload protocol
// and classifies failures into transient (retryable) and fatal errors.
package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/indexcp/indexcp/internal/common"
)

// UploadRequest carries one encrypted chunk with its session metadata.
type UploadRequest struct {
	FileKey    string
	Index      uint64
	SessionID  string
	KeyID      string
	WrappedKey []byte
	Nonce      []byte
	Ciphertext []byte
}

// Client is the request/response substrate the orchestrator talks through.
type Client interface {
	// PublicKey fetches the receiver's current public key and its id.
	PublicKey(ctx context.Context) (keyID string, publicKeyPEM []byte, err error)

	// UploadChunk transmits one encrypted chunk. Network failures and
	// 5xx responses wrap common.ErrTransientTransport; 401 wraps
	// common.ErrUnauthorized; other 4xx wrap common.ErrRejected.
	UploadChunk(ctx context.Context, req *UploadRequest) error

	// Status returns the indices the receiver has already accepted.
	Status(ctx context.Context, fileKey string) ([]uint64, error)

	// Complete asks the receiver to finalize the file. An incomplete index
	// set yields common.ErrIncompleteTransfer.
	Complete(ctx context.Context, fileKey, sessionID string, total uint64) error
}

// HTTPClient implements Client over net/http.
type HTTPClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: timeout,
		http:    &http.Client{},
	}
}

type publicKeyResponse struct {
	KeyID     string `json:"keyId"`
	PublicKey string `json:"publicKey"`
}

func (c *HTTPClient) PublicKey(ctx context.Context) (string, []byte, error) {
	body, err := c.do(ctx, http.MethodGet, "/public-key", nil, nil)
	if err != nil {
		return "", nil, err
	}

	var resp publicKeyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", nil, fmt.Errorf("decode public key response: %w", err)
	}
	return resp.KeyID, []byte(resp.PublicKey), nil
}

func (c *HTTPClient) UploadChunk(ctx context.Context, req *UploadRequest) error {
	headers := map[string]string{
		common.HeaderFileName:   req.FileKey,
		common.HeaderChunkIndex: strconv.FormatUint(req.Index, 10),
		common.HeaderSessionID:  req.SessionID,
		common.HeaderKeyID:      req.KeyID,
		common.HeaderWrappedKey: base64.StdEncoding.EncodeToString(req.WrappedKey),
		common.HeaderNonce:      base64.StdEncoding.EncodeToString(req.Nonce),
		"Content-Type":          "application/octet-stream",
	}

	_, err := c.do(ctx, http.MethodPost, "/upload", bytes.NewReader(req.Ciphertext), headers)
	if err != nil {
		return fmt.Errorf("upload chunk %d of %s: %w", req.Index, req.FileKey, err)
	}
	return nil
}

type statusResponse struct {
	Filename       string   `json:"filename"`
	ReceivedChunks []uint64 `json:"receivedChunks"`
}

func (c *HTTPClient) Status(ctx context.Context, fileKey string) ([]uint64, error) {
	path := "/upload/status?filename=" + url.QueryEscape(fileKey)
	body, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return resp.ReceivedChunks, nil
}

func (c *HTTPClient) Complete(ctx context.Context, fileKey, sessionID string, total uint64) error {
	headers := map[string]string{
		common.HeaderFileName:    fileKey,
		common.HeaderSessionID:   sessionID,
		common.HeaderTotalChunks: strconv.FormatUint(total, 10),
	}

	_, err := c.do(ctx, http.MethodPost, "/upload/complete", nil, headers)
	if err != nil {
		return fmt.Errorf("complete %s: %w", fileKey, err)
	}
	return nil
}

// do performs one request attempt with a per-attempt timeout and maps the
// response status to the error taxonomy.
func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, headers map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransientTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", common.ErrTransientTransport, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s", common.ErrUnauthorized, firstLine(data))
	case resp.StatusCode == http.StatusConflict:
		return nil, fmt.Errorf("%w: %s", common.ErrIncompleteTransfer, firstLine(data))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", common.ErrTransientTransport, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d: %s", common.ErrRejected, resp.StatusCode, firstLine(data))
	}
}

func firstLine(data []byte) string {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}
	const max = 200
	if len(data) > max {
		data = data[:max]
	}
	return string(data)
}
