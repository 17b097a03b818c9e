package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Sharjeel-Saleem-06/baatcheet/internal/models"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/utils"
)

// Conversations fetches the conversation list for the sidebar refresh after a
// submission completes.
func (c *Client) Conversations(ctx context.Context) ([]models.Conversation, error) {
	const op = "Client.Conversations"

	var out []models.Conversation
	if err := c.doJSON(ctx, op, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Conversation fetches a single conversation summary.
func (c *Client) Conversation(ctx context.Context, id string) (*models.Conversation, error) {
	const op = "Client.Conversation"

	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "conversation id is required", nil)
	}
	var out models.Conversation
	if err := c.doJSON(ctx, op, http.MethodGet, "/conversations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
