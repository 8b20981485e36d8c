package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// MoltXClient talks to the MoltX microblog API. Posts have no titles; a
// Post with a title prepends it to the body.
type MoltXClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewMoltXClient(baseURL, apiKey string) *MoltXClient {
	return &MoltXClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (x *MoltXClient) Name() string { return "moltx" }

func (x *MoltXClient) Post(ctx context.Context, title, body string) (string, error) {
	text := body
	if title != "" {
		text = title + "\n\n" + body
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := x.call(ctx, http.MethodPost, "/v1/statuses", map[string]string{"text": text}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (x *MoltXClient) Reply(ctx context.Context, parentID, body string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := x.call(ctx, http.MethodPost, "/v1/statuses", map[string]string{
		"text":        body,
		"in_reply_to": parentID,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

func (x *MoltXClient) Like(ctx context.Context, id string) error {
	return x.call(ctx, http.MethodPost, "/v1/statuses/"+url.PathEscape(id)+"/like", nil, nil)
}

func (x *MoltXClient) Follow(ctx context.Context, name string) error {
	return x.call(ctx, http.MethodPost, "/v1/accounts/"+url.PathEscape(name)+"/follow", nil, nil)
}

func (x *MoltXClient) SendDM(ctx context.Context, name, body string) error {
	return x.call(ctx, http.MethodPost, "/v1/dm", map[string]string{
		"recipient": name,
		"text":      body,
	}, nil)
}

func (x *MoltXClient) Feed(ctx context.Context, kind FeedKind, limit int) ([]Post, error) {
	var out []moltXStatus
	path := fmt.Sprintf("/v1/timelines/%s?limit=%d", url.PathEscape(string(kind)), limit)
	if err := x.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return convertMoltX(out), nil
}

func (x *MoltXClient) Mentions(ctx context.Context) ([]Post, error) {
	var out []moltXStatus
	if err := x.call(ctx, http.MethodGet, "/v1/notifications/mentions", nil, &out); err != nil {
		return nil, err
	}
	return convertMoltX(out), nil
}

func (x *MoltXClient) DMs(ctx context.Context) ([]Post, error) {
	var out []moltXStatus
	if err := x.call(ctx, http.MethodGet, "/v1/dm/inbox", nil, &out); err != nil {
		return nil, err
	}
	return convertMoltX(out), nil
}

func (x *MoltXClient) Search(ctx context.Context, query string, limit int) ([]Post, error) {
	var out []moltXStatus
	path := fmt.Sprintf("/v1/search?q=%s&limit=%d", url.QueryEscape(query), limit)
	if err := x.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return convertMoltX(out), nil
}

func (x *MoltXClient) MarkNotificationsRead(ctx context.Context) error {
	return x.call(ctx, http.MethodPost, "/v1/notifications/read", nil, nil)
}

func (x *MoltXClient) Health(ctx context.Context) error {
	return x.call(ctx, http.MethodGet, "/v1/health", nil, nil)
}

type moltXStatus struct {
	ID        string `json:"id"`
	Account   string `json:"account"`
	Text      string `json:"text"`
	InReplyTo string `json:"in_reply_to"`
	CreatedAt int64  `json:"created_at"`
}

func convertMoltX(in []moltXStatus) []Post {
	out := make([]Post, 0, len(in))
	for _, s := range in {
		out = append(out, Post{
			ID:        s.ID,
			Author:    s.Account,
			Body:      s.Text,
			ParentID:  s.InReplyTo,
			CreatedAt: s.CreatedAt,
		})
	}
	return out
}

func (x *MoltXClient) call(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, x.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+x.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := x.Client.Do(req)
	if err != nil {
		return fmt.Errorf("moltx %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("moltx API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode moltx response: %w", err)
		}
	}
	return nil
}
