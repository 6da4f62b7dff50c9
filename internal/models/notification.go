package models

// Notification is a push-delivered change event. It names an entity type and
// id; the authoritative content must still be fetched via REST. The payload
// is a signal, not the data.
type Notification struct {
	Type      string `json:"type"`
	UserID    string `json:"userId,omitempty"`
	ChatID    string `json:"chatId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

const (
	NotifyUserCreate       = "user_create"
	NotifyUserUpdate       = "user_update"
	NotifyUserDelete       = "user_delete"
	NotifyUserAvatarUpdate = "user_avatar_update"
	NotifyUserStatusChange = "user_status_change"

	NotifyChatCreate = "chat_create"
	NotifyChatUpdate = "chat_update"
	NotifyChatDelete = "chat_delete"

	NotifyMessageCreate = "message_create"
	NotifyMessageUpdate = "message_update"
	NotifyMessageDelete = "message_delete"
)
