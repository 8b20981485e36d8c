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

// MoltBookClient talks to the MoltBook forum API. Writes carry the bearer
// token; error bodies are surfaced verbatim so the scheduler can classify
// suspension and rate-limit pushback.
type MoltBookClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewMoltBookClient(baseURL, apiKey string) *MoltBookClient {
	return &MoltBookClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (m *MoltBookClient) Name() string { return "moltbook" }

func (m *MoltBookClient) Post(ctx context.Context, title, body string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := m.call(ctx, http.MethodPost, "/api/v1/posts", map[string]string{
		"title":   title,
		"content": body,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

func (m *MoltBookClient) Reply(ctx context.Context, parentID, body string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := m.call(ctx, http.MethodPost, "/api/v1/posts/"+url.PathEscape(parentID)+"/comments", map[string]string{
		"content": body,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

func (m *MoltBookClient) Like(ctx context.Context, id string) error {
	return m.call(ctx, http.MethodPost, "/api/v1/posts/"+url.PathEscape(id)+"/upvote", nil, nil)
}

func (m *MoltBookClient) Follow(ctx context.Context, name string) error {
	return m.call(ctx, http.MethodPost, "/api/v1/agents/"+url.PathEscape(name)+"/follow", nil, nil)
}

func (m *MoltBookClient) SendDM(ctx context.Context, name, body string) error {
	return m.call(ctx, http.MethodPost, "/api/v1/dm", map[string]string{
		"to":      name,
		"content": body,
	}, nil)
}

func (m *MoltBookClient) Feed(ctx context.Context, kind FeedKind, limit int) ([]Post, error) {
	var out struct {
		Posts []moltBookPost `json:"posts"`
	}
	path := fmt.Sprintf("/api/v1/feed?sort=%s&limit=%d", url.QueryEscape(string(kind)), limit)
	if err := m.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return convertMoltBook(out.Posts), nil
}

func (m *MoltBookClient) Mentions(ctx context.Context) ([]Post, error) {
	var out struct {
		Mentions []moltBookPost `json:"mentions"`
	}
	if err := m.call(ctx, http.MethodGet, "/api/v1/notifications/mentions", nil, &out); err != nil {
		return nil, err
	}
	return convertMoltBook(out.Mentions), nil
}

func (m *MoltBookClient) DMs(ctx context.Context) ([]Post, error) {
	var out struct {
		Messages []moltBookPost `json:"messages"`
	}
	if err := m.call(ctx, http.MethodGet, "/api/v1/dm/inbox", nil, &out); err != nil {
		return nil, err
	}
	return convertMoltBook(out.Messages), nil
}

func (m *MoltBookClient) Search(ctx context.Context, query string, limit int) ([]Post, error) {
	var out struct {
		Results []moltBookPost `json:"results"`
	}
	path := fmt.Sprintf("/api/v1/search?q=%s&limit=%d", url.QueryEscape(query), limit)
	if err := m.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return convertMoltBook(out.Results), nil
}

func (m *MoltBookClient) MarkNotificationsRead(ctx context.Context) error {
	return m.call(ctx, http.MethodPost, "/api/v1/notifications/read", nil, nil)
}

func (m *MoltBookClient) Health(ctx context.Context) error {
	return m.call(ctx, http.MethodGet, "/api/v1/health", nil, nil)
}

type moltBookPost struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	ParentID  string `json:"parent_id"`
	CreatedAt int64  `json:"created_at"`
}

func convertMoltBook(in []moltBookPost) []Post {
	out := make([]Post, 0, len(in))
	for _, p := range in {
		out = append(out, Post{
			ID:        p.ID,
			Author:    p.Author,
			Title:     p.Title,
			Body:      p.Content,
			ParentID:  p.ParentID,
			CreatedAt: p.CreatedAt,
		})
	}
	return out
}

func (m *MoltBookClient) call(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.Client.Do(req)
	if err != nil {
		return fmt.Errorf("moltbook %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("moltbook API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode moltbook response: %w", err)
		}
	}
	return nil
}
