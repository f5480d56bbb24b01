package blogapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/starford/scribe/internal/models"
)

// Page is a Spring Data page envelope.
type Page[T any] struct {
	Content       []T  `json:"content"`
	TotalPages    int  `json:"totalPages"`
	TotalElements int  `json:"totalElements"`
	Number        int  `json:"number"`
	Size          int  `json:"size"`
	Last          bool `json:"last"`
}

func pageQuery(page, size int) url.Values {
	return url.Values{
		"page": {strconv.Itoa(page)},
		"size": {strconv.Itoa(size)},
	}
}

// FetchPage returns one page of the post list with its envelope.
func (c *Client) FetchPage(ctx context.Context, page, size int) (Page[models.PostSummary], error) {
	var p Page[models.PostSummary]
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/blog/posts", query: pageQuery(page, size)}, &p)
	return p, err
}

// FetchPostsPage returns the items of one page of the post list.
func (c *Client) FetchPostsPage(ctx context.Context, page, size int) ([]models.PostSummary, error) {
	p, err := c.FetchPage(ctx, page, size)
	if err != nil {
		return nil, err
	}
	return p.Content, nil
}

// SearchPosts returns one page of posts matching keyword.
func (c *Client) SearchPosts(ctx context.Context, keyword string, page, size int) ([]models.PostSummary, error) {
	q := pageQuery(page, size)
	q.Set("keyword", keyword)
	var p Page[models.PostSummary]
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/blog/search", query: q}, &p); err != nil {
		return nil, err
	}
	return p.Content, nil
}

// GetPost returns the full post.
func (c *Client) GetPost(ctx context.Context, id models.PostID) (models.Post, error) {
	var p models.Post
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/blog/" + id.String()}, &p)
	return p, err
}

func (c *Client) CreatePost(ctx context.Context, p models.Post) (models.Post, error) {
	r, err := jsonRequest(http.MethodPost, "/api/blog/create", p)
	if err != nil {
		return models.Post{}, err
	}
	var out models.Post
	err = c.do(ctx, r, &out)
	return out, err
}

func (c *Client) UpdatePost(ctx context.Context, id models.PostID, p models.Post) (models.Post, error) {
	r, err := jsonRequest(http.MethodPut, "/api/blog/"+id.String(), p)
	if err != nil {
		return models.Post{}, err
	}
	var out models.Post
	err = c.do(ctx, r, &out)
	return out, err
}

// DeletePost deletes a post. The backend may answer with an empty body.
func (c *Client) DeletePost(ctx context.Context, id models.PostID) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/api/blog/" + id.String()}, nil)
}
