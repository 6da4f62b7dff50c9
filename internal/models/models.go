package models

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

// User is the public user record as the backend serves it.
type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	FullName  string     `json:"fullName"`
	CreatedAt *time.Time `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

// DisplayName returns the name to show for a user: full name when set,
// username otherwise.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	if u.Username != "" {
		return u.Username
	}
	return "Anonymous"
}

// Chat represents a direct (1:1) conversation. Title is optional; when it is
// empty the UI derives a display name from the counterpart user.
type Chat struct {
	ID           string     `json:"id"`
	CreatorID    string     `json:"creatorId"`
	DirectUserID string     `json:"directUserId"`
	Title        string     `json:"title"`
	CreatedAt    *time.Time `json:"createdAt"`
	UpdatedAt    *time.Time `json:"updatedAt"`
}

// Counterpart returns the id of the other participant of a direct chat.
func (c Chat) Counterpart(currentUserID string) string {
	if c.CreatorID == currentUserID {
		return c.DirectUserID
	}
	return c.CreatorID
}

// Message belongs to exactly one chat.
type Message struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	ChatID    string     `json:"chatId"`
	Message   string     `json:"message"`
	CreatedAt *time.Time `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

// Credential is the access token + expiry + identity bundle returned by login
// and registration. Its presence and non-expiry is the sole source of
// "is logged in".
type Credential struct {
	User
	AccessToken          string     `json:"accessToken"`
	AccessTokenExpiresAt *time.Time `json:"accessTokenExpiresAt"`
}

// Valid reports whether the credential can still be used at the given time.
func (c *Credential) Valid(now time.Time) bool {
	if c == nil || c.AccessToken == "" || c.AccessTokenExpiresAt == nil {
		return false
	}
	return now.Before(*c.AccessTokenExpiresAt)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UpdateUserRequest struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
}

type CreateChatRequest struct {
	CreatorID    string `json:"creatorId"`
	DirectUserID string `json:"directUserId"`
	Title        string `json:"title,omitempty"`
}

type CreateMessageRequest struct {
	ChatID  string `json:"chatId"`
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// ActiveUsers is the response of GET /users/active.
type ActiveUsers struct {
	ActiveUserIDs []string `json:"activeUserIds"`
}

// ErrorMessage is the error body the backend sends with non-2xx responses.
type ErrorMessage struct {
	Message string `json:"error"`
}

func (e *ErrorMessage) Error() string {
	return e.Message
}
