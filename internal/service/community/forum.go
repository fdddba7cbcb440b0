package community

import (
	"fmt"
	"strings"
	"sync"

	"tcmhub/internal/access"
	"tcmhub/internal/apperr"
	"tcmhub/internal/events"
	"tcmhub/internal/models"
)

var postCategories = []string{AllCategories, "藥膳食療", "針灸推拿", "中醫理論", "臨床經驗"}

// PostDraft holds the fields of the create-post form.
type PostDraft struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

type PostQuery struct {
	Category string
	Search   string
	Sort     Sort
}

// Forum is the in-memory post collection, newest first.
type Forum struct {
	mu    sync.RWMutex
	posts []*models.Post
	opts  options
}

func NewForum(seed []*models.Post, opts ...Option) *Forum {
	o := buildOptions(opts)
	o.log = o.log.With("component", "Forum")
	return &Forum{posts: seed, opts: o}
}

// Categories lists the forum filter chips, "全部" first.
func (f *Forum) Categories() []string {
	return append([]string(nil), postCategories...)
}

// CreatePost prepends a new post as a draft or published.
func (f *Forum) CreatePost(viewer models.Viewer, draft PostDraft, publish bool) (*models.Post, error) {
	if err := access.Check(viewer.Role, access.ActionCreatePost); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(draft.Title)
	content := strings.TrimSpace(draft.Content)
	category := strings.TrimSpace(draft.Category)
	switch {
	case title == "":
		return nil, apperr.Missing("title")
	case content == "":
		return nil, apperr.Missing("content")
	case category == "":
		return nil, apperr.Missing("category")
	}
	tags := nonEmpty(draft.Tags)
	if len(tags) == 0 {
		tags = []string{category}
	}
	status := models.StatusDraft
	if publish {
		status = models.StatusPublished
	}
	post := &models.Post{
		ID:        mintID("p"),
		Title:     title,
		Content:   content,
		Category:  category,
		Tags:      tags,
		AuthorID:  viewer.ID,
		Comments:  []models.Comment{},
		CreatedAt: f.opts.now(),
		Status:    status,
	}

	f.mu.Lock()
	f.posts = append([]*models.Post{post}, f.posts...)
	out := post.Clone()
	f.mu.Unlock()

	f.publish("created", post.ID)
	return out, nil
}

// AddComment appends a comment, keeping the thread chronological.
func (f *Forum) AddComment(viewer models.Viewer, postID, text string) (*models.Comment, error) {
	if err := access.Check(viewer.Role, access.ActionComment); err != nil {
		return nil, err
	}
	f.mu.Lock()
	post := f.findVisibleLocked(viewer, postID)
	if post == nil {
		f.mu.Unlock()
		return nil, apperr.NotFound("post", postID)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: comment text is empty", apperr.ErrInvalidArgument)
	}
	comment := models.Comment{
		ID:        mintID("c"),
		AuthorID:  viewer.ID,
		Text:      text,
		CreatedAt: f.opts.now(),
	}
	post.Comments = append(post.Comments, comment)
	f.mu.Unlock()

	f.publish("commented", postID)
	return &comment, nil
}

// Like adds one like and returns the new count. Repeated likes all count.
func (f *Forum) Like(viewer models.Viewer, postID string) (int, error) {
	if err := access.Check(viewer.Role, access.ActionLike); err != nil {
		return 0, err
	}
	f.mu.Lock()
	post := f.findVisibleLocked(viewer, postID)
	if post == nil {
		f.mu.Unlock()
		return 0, apperr.NotFound("post", postID)
	}
	post.Likes++
	n := post.Likes
	f.mu.Unlock()

	f.publish("liked", postID)
	return n, nil
}

// View counts one view and returns the post.
func (f *Forum) View(viewer models.Viewer, postID string) (*models.Post, error) {
	f.mu.Lock()
	post := f.findVisibleLocked(viewer, postID)
	if post == nil {
		f.mu.Unlock()
		return nil, apperr.NotFound("post", postID)
	}
	post.Views++
	out := post.Clone()
	f.mu.Unlock()

	f.publish("viewed", postID)
	return out, nil
}

// Publish moves the author's draft to published. Publishing a published
// post is a no-op.
func (f *Forum) Publish(viewer models.Viewer, postID string) (*models.Post, error) {
	if err := access.Check(viewer.Role, access.ActionCreatePost); err != nil {
		return nil, err
	}
	f.mu.Lock()
	post := f.findVisibleLocked(viewer, postID)
	if post == nil {
		f.mu.Unlock()
		return nil, apperr.NotFound("post", postID)
	}
	if post.AuthorID != viewer.ID {
		f.mu.Unlock()
		return nil, &apperr.Denial{Action: "post:publish"}
	}
	changed := post.Status != models.StatusPublished
	post.Status = models.StatusPublished
	out := post.Clone()
	f.mu.Unlock()

	if changed {
		f.publish("published", postID)
	}
	return out, nil
}

// Get returns a post if the viewer may see it.
func (f *Forum) Get(viewer models.Viewer, postID string) (*models.Post, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	post := f.findVisibleLocked(viewer, postID)
	if post == nil {
		return nil, apperr.NotFound("post", postID)
	}
	return post.Clone(), nil
}

// Query filters by category and text (title or content), then sorts.
func (f *Forum) Query(viewer models.Viewer, q PostQuery) []*models.Post {
	f.mu.RLock()
	out := make([]*models.Post, 0, len(f.posts))
	for _, p := range f.posts {
		if !visibleTo(p.Status, p.AuthorID, viewer) {
			continue
		}
		if !matchCategory(q.Category, p.Category) || !matchText(q.Search, p.Title, p.Content) {
			continue
		}
		out = append(out, p.Clone())
	}
	f.mu.RUnlock()

	sortByKey(out, q.Sort,
		func(p *models.Post) string { return p.ID },
		func(p *models.Post) int { return p.Likes })
	return out
}

// ByAuthor lists an author's posts in store order; drafts only for the author.
func (f *Forum) ByAuthor(viewer models.Viewer, authorID string) []*models.Post {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := []*models.Post{}
	for _, p := range f.posts {
		if p.AuthorID == authorID && visibleTo(p.Status, p.AuthorID, viewer) {
			out = append(out, p.Clone())
		}
	}
	return out
}

// Latest is the first published post in store order, or nil.
func (f *Forum) Latest() *models.Post {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, p := range f.posts {
		if p.Status == models.StatusPublished {
			return p.Clone()
		}
	}
	return nil
}

func (f *Forum) findVisibleLocked(viewer models.Viewer, postID string) *models.Post {
	for _, p := range f.posts {
		if p.ID == postID {
			if !visibleTo(p.Status, p.AuthorID, viewer) {
				return nil
			}
			return p
		}
	}
	return nil
}

func (f *Forum) publish(kind, postID string) {
	f.opts.events.Publish(events.Event{Topic: events.TopicForum, Kind: kind, EntityID: postID})
}
