package remote

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/KevinKickass/OpenLabManager/internal/storage"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"go.uber.org/zap"
)

type authUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	} `json:"user_metadata"`
}

func (u authUser) identity() *types.ExternalIdentity {
	return &types.ExternalIdentity{
		Subject: u.ID,
		Email:   u.Email,
		Name:    u.UserMetadata.Name,
		Avatar:  u.UserMetadata.AvatarURL,
	}
}

// authResponse covers both the token response and the signup response,
// which returns either a session or the bare user.
type authResponse struct {
	AccessToken string    `json:"access_token"`
	User        *authUser `json:"user"`
	authUser
}

type authError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
}

func (a *authResponse) identity() (*types.ExternalIdentity, error) {
	if a.User != nil && a.User.ID != "" {
		return a.User.identity(), nil
	}
	if a.ID != "" {
		return a.authUser.identity(), nil
	}
	return nil, fmt.Errorf("auth response carries no user")
}

// SignInWithPassword checks credentials against the auth endpoint.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*types.ExternalIdentity, error) {
	var out authResponse
	var failure authError
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "password").
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).
		SetError(&failure).
		Post("/auth/v1/token")
	if err != nil {
		return nil, types.Unavailable("sign in", err)
	}

	switch {
	case resp.StatusCode() == http.StatusBadRequest, resp.StatusCode() == http.StatusUnauthorized:
		c.logger.Info("External sign-in rejected", zap.String("email", email))
		return nil, types.NewAuthError(types.ErrInvalidCredentials)
	case resp.IsError():
		return nil, types.Unavailable("sign in", fmt.Errorf("status %d: %s", resp.StatusCode(), failure.message()))
	}

	identity, err := out.identity()
	if err != nil {
		return nil, types.Unavailable("sign in", err)
	}
	return identity, nil
}

// SignUp registers a new identity with name and avatar as metadata.
func (c *Client) SignUp(ctx context.Context, email, password, name, avatar string) (*types.ExternalIdentity, error) {
	var out authResponse
	var failure authError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"email":    email,
			"password": password,
			"data":     map[string]string{"name": name, "avatar_url": avatar},
		}).
		SetResult(&out).
		SetError(&failure).
		Post("/auth/v1/signup")
	if err != nil {
		return nil, types.Unavailable("sign up", err)
	}

	switch {
	case resp.StatusCode() == http.StatusUnprocessableEntity || resp.StatusCode() == http.StatusConflict:
		return nil, types.Duplicate("user", "email")
	case resp.StatusCode() == http.StatusBadRequest:
		return nil, types.Invalid("user", "password")
	case resp.IsError():
		return nil, types.Unavailable("sign up", fmt.Errorf("status %d: %s", resp.StatusCode(), failure.message()))
	}

	identity, err := out.identity()
	if err != nil {
		return nil, types.Unavailable("sign up", err)
	}
	if identity.Name == "" {
		identity.Name = name
	}
	return identity, nil
}

func (e authError) message() string {
	for _, m := range []string{e.ErrorDescription, e.Msg, e.Error} {
		if m != "" {
			return m
		}
	}
	return "unknown error"
}

// UploadObject stores data in the attachment bucket and returns its public
// URL.
func (c *Client) UploadObject(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	clean := strings.TrimPrefix(path.Clean("/"+objectPath), "/")
	objectURL := fmt.Sprintf("/storage/v1/object/%s/%s", storage.HostedAttachmentPath, clean)

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetHeader("x-upsert", "true").
		SetBody(data).
		Post(objectURL)
	if err := c.check("upload attachment", "attachment", "fileName", resp, err); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, storage.HostedAttachmentPath, clean), nil
}
