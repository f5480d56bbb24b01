// Package models defines the domain types shared by the composer and the feed.
package models

import (
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// PostID identifies a published post on the blog backend.
type PostID int64

// String returns the decimal form used in URLs.
func (id PostID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParsePostID parses a decimal post id.
func ParsePostID(s string) (PostID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return PostID(n), nil
}

// Post status values accepted by the backend.
const (
	StatusDraft     = "0"
	StatusPublished = "1"
)

// Draft is the locally persisted, unpublished post text.
// The JSON field names match the slot format written by the web composer.
type Draft struct {
	Title string `json:"title"`
	Body  string `json:"content"`
}

// Empty reports whether the draft has neither title nor body.
func (d Draft) Empty() bool {
	return d.Title == "" && d.Body == ""
}

// Validate checks that the draft can be published: both title and body
// must hold more than whitespace.
func (d Draft) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Title, validation.By(notBlank), validation.RuneLength(0, 200)),
		validation.Field(&d.Body, validation.By(notBlank)),
	)
}

func notBlank(v any) error {
	s, _ := v.(string)
	if strings.TrimSpace(s) == "" {
		return validation.NewError("validation_required", "cannot be blank")
	}
	return nil
}

// PostSummary is one entry of a feed page.
type PostSummary struct {
	ID          PostID `json:"postId"`
	Title       string `json:"title"`
	Preview     string `json:"preview"`
	Status      string `json:"status,omitempty"`
	ViewCount   int    `json:"viewCount,omitempty"`
	PublishedAt string `json:"publishedAt"`
}

// Post is the full representation sent on create and update.
type Post struct {
	ID          PostID     `json:"postId,omitempty"`
	UserID      int64      `json:"userId,omitempty"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Status      string     `json:"status"`
	ViewCount   int        `json:"viewCount,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	Preview     string     `json:"preview,omitempty"`
}

// PostFromDraft builds a publishable post from a draft.
func PostFromDraft(d Draft, status string) Post {
	return Post{Title: d.Title, Content: d.Body, Status: status}
}

// SharedLink is a link the author shares in the dashboard sidebar.
type SharedLink struct {
	ID    int64  `json:"linkId,omitempty"`
	Icon  string `json:"icon"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// UserInfo is the blogger profile.
type UserInfo struct {
	Username string       `json:"username"`
	Avatar   string       `json:"avatar,omitempty"`
	Email    string       `json:"email"`
	WechatID string       `json:"wechatId,omitempty"`
	Bio      string       `json:"bio,omitempty"`
	BlogName string       `json:"blogName"`
	Links    []SharedLink `json:"links,omitempty"`
}

// ProfileUpdate is the editable part of the author's profile. The backend
// replaces every field, so callers send the full set.
type ProfileUpdate struct {
	Avatar   string `json:"avatar"`
	Email    string `json:"email"`
	WechatID string `json:"wechatId"`
	Bio      string `json:"bio"`
	BlogName string `json:"blogName"`
}

// ProfileOf returns the editable fields of u.
func ProfileOf(u UserInfo) ProfileUpdate {
	return ProfileUpdate{Avatar: u.Avatar, Email: u.Email, WechatID: u.WechatID, Bio: u.Bio, BlogName: u.BlogName}
}

func (p ProfileUpdate) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, is.EmailFormat),
		validation.Field(&p.BlogName, validation.By(notBlank), validation.RuneLength(0, 100)),
		validation.Field(&p.Avatar, is.URL),
	)
}

// Apply copies the update onto u.
func (p ProfileUpdate) Apply(u *UserInfo) {
	u.Avatar = p.Avatar
	u.Email = p.Email
	u.WechatID = p.WechatID
	u.Bio = p.Bio
	u.BlogName = p.BlogName
}

// Media is a music or movie entry shown in the dashboard sidebar.
type Media struct {
	ID          int64  `json:"mediaId,omitempty"`
	Title       string `json:"title"`
	Picture     string `json:"picture,omitempty"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	Artist      string `json:"artist,omitempty"`
	PublishDate string `json:"publishDate,omitempty"`
}

// Dashboard aggregates everything the home view shows besides the feed.
type Dashboard struct {
	User        UserInfo      `json:"userInfo"`
	RecentPosts []PostSummary `json:"recentPosts"`
	LatestMedia []Media       `json:"latestMedia"`
	RecentLinks []SharedLink  `json:"recentLinks"`
}

// Credentials are submitted on login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is the login response.
type LoginResult struct {
	Token string   `json:"token"`
	User  UserInfo `json:"userInfo"`
}

// UploadedMedia is the response of a media upload.
type UploadedMedia struct {
	URL string `json:"url"`
}
