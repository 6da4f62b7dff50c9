package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"govorilka/internal/models"

	"github.com/h2non/filetype"
)

const maxAvatarSize = 15 * 1024 * 1024

var permittedAvatarTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

var ErrAvatarNotPermitted = errors.New("avatar must be a jpeg or png image up to 15MB")

func (c *Client) Login(ctx context.Context, req models.LoginRequest) (models.Credential, error) {
	var cred models.Credential
	err := c.doRequest(ctx, http.MethodPost, "/login", req, false, &cred)
	return cred, err
}

func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (models.Credential, error) {
	var cred models.Credential
	err := c.doRequest(ctx, http.MethodPost, "/register", req, false, &cred)
	return cred, err
}

func (c *Client) Logout(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/logout", nil, true, nil)
}

func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := c.doRequest(ctx, http.MethodGet, "/users", nil, true, &users)
	return users, err
}

func (c *Client) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	var resp models.ActiveUsers
	if err := c.doRequest(ctx, http.MethodGet, "/users/active", nil, true, &resp); err != nil {
		return nil, err
	}
	return resp.ActiveUserIDs, nil
}

func (c *Client) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := c.doRequest(ctx, http.MethodGet, "/user/"+userID, nil, true, &user)
	return user, err
}

func (c *Client) UpdateUser(ctx context.Context, req models.UpdateUserRequest) (models.User, error) {
	var user models.User
	err := c.doRequest(ctx, http.MethodPut, "/user/"+req.ID, req, true, &user)
	return user, err
}

// UploadAvatar sends an avatar image. The content type is sniffed from the
// image bytes; only jpeg and png are permitted, matching the backend.
func (c *Client) UploadAvatar(ctx context.Context, userID string, blob []byte) error {
	if len(blob) == 0 || len(blob) > maxAvatarSize {
		return ErrAvatarNotPermitted
	}

	kind, err := filetype.Match(blob)
	if err != nil || !permittedAvatarTypes[kind.MIME.Value] {
		return ErrAvatarNotPermitted
	}

	path := fmt.Sprintf("/user/%s/avatar", userID)
	return c.uploadBlob(ctx, http.MethodPost, path, blob, kind.MIME.Value, true)
}

// GetAvatar downloads a user's avatar. A missing avatar (or any fetch
// failure other than 401) resolves to nil bytes and no error: the caller
// treats it as an absent image.
func (c *Client) GetAvatar(ctx context.Context, userID string) ([]byte, string, error) {
	path := fmt.Sprintf("/user/%s/avatar", userID)
	blob, contentType, err := c.downloadBlob(ctx, http.MethodGet, path, true)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return nil, "", err
		}
		return nil, "", nil
	}
	return blob, contentType, nil
}
