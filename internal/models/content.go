package models

import (
	"slices"
	"time"
)

// Status is the publication state of a post or video. Drafts only move to
// published, never back.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Comment is an append-only reply on a post or video.
type Comment struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	Tags      []string  `json:"tags"`
	AuthorID  string    `json:"author_id"`
	Likes     int       `json:"likes"`
	Views     int       `json:"views"`
	Comments  []Comment `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`
}

func (p *Post) Clone() *Post {
	out := *p
	out.Tags = slices.Clone(p.Tags)
	out.Comments = slices.Clone(p.Comments)
	return &out
}

type Video struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ThumbnailURL string    `json:"thumbnail_url"`
	VideoURL     string    `json:"video_url,omitempty"`
	Duration     string    `json:"duration"`
	Category     string    `json:"category"`
	Tags         []string  `json:"tags"`
	Paid         bool      `json:"is_paid"`
	AuthorID     string    `json:"author_id"`
	Views        int       `json:"views"`
	Likes        int       `json:"likes"`
	Comments     []Comment `json:"comments"`
	CreatedAt    time.Time `json:"created_at"`
	Status       Status    `json:"status"`
}

func (v *Video) Clone() *Video {
	out := *v
	out.Tags = slices.Clone(v.Tags)
	out.Comments = slices.Clone(v.Comments)
	return &out
}
