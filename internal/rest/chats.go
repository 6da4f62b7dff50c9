package rest

import (
	"context"
	"net/http"

	"govorilka/internal/models"
)

func (c *Client) ListChats(ctx context.Context) ([]models.Chat, error) {
	var chats []models.Chat
	err := c.doRequest(ctx, http.MethodGet, "/chats", nil, true, &chats)
	return chats, err
}

func (c *Client) CreateChat(ctx context.Context, req models.CreateChatRequest) (models.Chat, error) {
	var chat models.Chat
	err := c.doRequest(ctx, http.MethodPost, "/chat", req, true, &chat)
	return chat, err
}

func (c *Client) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	var chat models.Chat
	err := c.doRequest(ctx, http.MethodGet, "/chat/"+chatID, nil, true, &chat)
	return chat, err
}

func (c *Client) UpdateChat(ctx context.Context, chat models.Chat) (models.Chat, error) {
	var updated models.Chat
	err := c.doRequest(ctx, http.MethodPut, "/chat/"+chat.ID, chat, true, &updated)
	return updated, err
}

func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.doRequest(ctx, http.MethodDelete, "/chat/"+chatID, nil, true, nil)
}
