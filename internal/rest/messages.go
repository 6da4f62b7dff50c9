package rest

import (
	"context"
	"fmt"
	"net/http"

	"govorilka/internal/models"
)

func (c *Client) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	var messages []models.Message
	path := fmt.Sprintf("/chat/%s/messages", chatID)
	err := c.doRequest(ctx, http.MethodGet, path, nil, true, &messages)
	return messages, err
}

func (c *Client) CreateMessage(ctx context.Context, req models.CreateMessageRequest) (models.Message, error) {
	var msg models.Message
	path := fmt.Sprintf("/chat/%s/message", req.ChatID)
	err := c.doRequest(ctx, http.MethodPost, path, req, true, &msg)
	return msg, err
}

func (c *Client) GetMessage(ctx context.Context, chatID, messageID string) (models.Message, error) {
	var msg models.Message
	path := fmt.Sprintf("/chat/%s/message/%s", chatID, messageID)
	err := c.doRequest(ctx, http.MethodGet, path, nil, true, &msg)
	return msg, err
}

func (c *Client) UpdateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	var updated models.Message
	path := fmt.Sprintf("/chat/%s/message/%s", msg.ChatID, msg.ID)
	err := c.doRequest(ctx, http.MethodPut, path, msg, true, &updated)
	return updated, err
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	path := fmt.Sprintf("/chat/%s/message/%s", chatID, messageID)
	return c.doRequest(ctx, http.MethodDelete, path, nil, true, nil)
}
