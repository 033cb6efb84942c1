package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// LoadConversations fetches the user's conversation collection and decodes
// it into v.
func (c *Client) LoadConversations(ctx context.Context, userID string, v any) error {
	resp, err := c.do(ctx, http.MethodGet, conversationsPath+"?userId="+url.QueryEscape(userID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read conversations: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode conversations: %w", err)
	}
	return nil
}

// SaveConversations replaces the user's conversation collection.
func (c *Client) SaveConversations(ctx context.Context, userID string, conversations any) error {
	body, err := json.Marshal(struct {
		UserID        string `json:"userId"`
		Conversations any    `json:"conversations"`
	}{userID, conversations})
	if err != nil {
		return fmt.Errorf("marshal conversations: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, conversationsPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}
