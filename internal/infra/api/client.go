// Package api is the HTTP client for the chatd admin REST endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"freightdesk/internal/domain/chat"
	"freightdesk/internal/infra/realtime"
)

const DefaultTimeout = 15 * time.Second

// StatusError is a non-2xx reply from chatd.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chatd: http %d", e.Status)
	}
	return fmt.Sprintf("chatd: http %d: %s", e.Status, e.Message)
}

// Client calls chatd on behalf of one principal.
type Client struct {
	baseURL    string
	self       chat.Participant
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(baseURL string, self chat.Participant, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		self:       self,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func (c *Client) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	var out []chat.Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/api/admin/conversations", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OpenConversation gets or creates the thread with userID and reports whether
// it was created.
func (c *Client) OpenConversation(ctx context.Context, userID string) (string, bool, error) {
	var out struct {
		ConversationID string `json:"conversation_id"`
	}
	req := map[string]string{"user_id": userID}
	status, err := c.do(ctx, http.MethodPost, "/api/admin/conversations", nil, req, &out)
	if err != nil {
		return "", false, err
	}
	return out.ConversationID, status == http.StatusCreated, nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	var out []chat.Message
	err := c.doJSON(ctx, http.MethodGet, "/api/admin/conversations/"+url.PathEscape(conversationID), nil, nil, &out)
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", chat.ErrConversationNotFound, conversationID)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage posts JSON for text-only messages and a multipart form when an
// attachment is present.
func (c *Client) SendMessage(ctx context.Context, msg chat.OutgoingMessage) (chat.SendReceipt, error) {
	path := "/api/admin/conversations/" + url.PathEscape(msg.ConversationID)
	var receipt chat.SendReceipt
	if msg.Upload == nil {
		req := map[string]string{"message": msg.Body, "client_id": msg.ClientID}
		if err := c.doJSON(ctx, http.MethodPost, path, nil, req, &receipt); err != nil {
			return chat.SendReceipt{}, err
		}
		return receipt, nil
	}

	body, contentType, err := multipartBody(msg)
	if err != nil {
		return chat.SendReceipt{}, err
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return chat.SendReceipt{}, err
	}
	httpReq.Header.Set("Content-Type", contentType)
	if _, err := c.send(httpReq, &receipt); err != nil {
		return chat.SendReceipt{}, err
	}
	return receipt, nil
}

func multipartBody(msg chat.OutgoingMessage) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if msg.Body != "" {
		_ = w.WriteField("message", msg.Body)
	}
	if msg.ClientID != "" {
		_ = w.WriteField("client_id", msg.ClientID)
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, msg.Upload.Name))
	h.Set("Content-Type", msg.Upload.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(msg.Upload.Data); err != nil {
		return nil, "", fmt.Errorf("write file data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/admin/conversations/"+url.PathEscape(conversationID)+"/read", nil, nil, nil)
}

func (c *Client) LookupUsers(ctx context.Context, ids []string) (map[string]chat.UserInfo, error) {
	out := map[string]chat.UserInfo{}
	if len(ids) == 0 {
		return out, nil
	}
	q := url.Values{"ids": {strings.Join(ids, ",")}}
	if err := c.doJSON(ctx, http.MethodGet, "/api/users/batch", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CleanupSelfConversations(ctx context.Context) (int, error) {
	var out struct {
		DeletedCount int `json:"deleted_count"`
	}
	q := url.Values{"cleanup": {"true"}}
	if err := c.doJSON(ctx, http.MethodDelete, "/api/admin/conversations", q, nil, &out); err != nil {
		return 0, err
	}
	return out.DeletedCount, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	_, err := c.do(ctx, method, path, query, body, out)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, method, path, query, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(realtime.HeaderUserID, c.self.ID)
	req.Header.Set(realtime.HeaderUserRole, string(c.self.Role))
	return req, nil
}

func (c *Client) send(req *http.Request, out any) (int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("chatd request failed", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode, "error", env.Error)
		return resp.StatusCode, &StatusError{Status: resp.StatusCode, Message: env.Error}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode data: %w", err)
		}
	}
	return resp.StatusCode, nil
}
