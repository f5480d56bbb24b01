package blogapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/starford/scribe/internal/models"
)

// Login exchanges credentials for a token. Storing the token is the
// session's job.
func (c *Client) Login(ctx context.Context, creds models.Credentials) (models.LoginResult, error) {
	r, err := jsonRequest(http.MethodPost, "/api/auth/login", creds)
	if err != nil {
		return models.LoginResult{}, err
	}
	var out models.LoginResult
	err = c.do(ctx, r, &out)
	return out, err
}

// CheckUserExists reports whether the blog has been set up with an author.
func (c *Client) CheckUserExists(ctx context.Context) (bool, error) {
	var exists bool
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/auth/check-user-exists"}, &exists)
	return exists, err
}

// CurrentUser returns the profile of the token's owner.
func (c *Client) CurrentUser(ctx context.Context) (models.UserInfo, error) {
	var u models.UserInfo
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/user/profile"}, &u)
	return u, err
}

// UpdateUserInfo replaces the author's profile fields and returns the
// stored profile.
func (c *Client) UpdateUserInfo(ctx context.Context, p models.ProfileUpdate) (models.UserInfo, error) {
	r, err := jsonRequest(http.MethodPut, "/api/user/profile", p)
	if err != nil {
		return models.UserInfo{}, err
	}
	var u models.UserInfo
	err = c.do(ctx, r, &u)
	return u, err
}

func (c *Client) LatestMedia(ctx context.Context, userID int64) ([]models.Media, error) {
	var out []models.Media
	q := url.Values{"userId": {strconv.FormatInt(userID, 10)}}
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/media/latest", query: q}, &out)
	return out, err
}

func (c *Client) LatestSharedLinks(ctx context.Context, limit int) ([]models.SharedLink, error) {
	var out []models.SharedLink
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/shared-links/latest", query: q}, &out)
	return out, err
}
