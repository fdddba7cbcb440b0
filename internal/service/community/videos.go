package community

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"tcmhub/internal/access"
	"tcmhub/internal/apperr"
	"tcmhub/internal/events"
	"tcmhub/internal/models"
)

const (
	// OtherCategory on upload means "use the custom category instead".
	OtherCategory = "其他"
	// OtherTag as a filter matches videos carrying none of the curated tags.
	OtherTag = "其他"

	DefaultThumbnailURL = "https://images.unsplash.com/photo-1515023115689-5824739084f3?auto=format&fit=crop&q=80&w=1000"
	DefaultDuration     = "10:00"
)

var (
	videoCategories = []string{AllCategories, "針灸推拿", "藥膳食療", "氣功導引", "中醫理論", "婦科調理"}
	curatedTags     = []string{"穴位", "居家護理", "疼痛", "八段錦", "養生", "進階", "枸杞", "食療", "女性", "月經", "調理"}
)

// PaidFilter restricts a query to free or paid videos.
type PaidFilter string

const (
	PaidAll  PaidFilter = "all"
	PaidFree PaidFilter = "free"
	PaidOnly PaidFilter = "paid"
)

func ParsePaidFilter(s string) PaidFilter {
	switch PaidFilter(strings.ToLower(strings.TrimSpace(s))) {
	case PaidFree:
		return PaidFree
	case PaidOnly:
		return PaidOnly
	default:
		return PaidAll
	}
}

func (p PaidFilter) match(paid bool) bool {
	switch p {
	case PaidFree:
		return !paid
	case PaidOnly:
		return paid
	default:
		return true
	}
}

// VideoDraft holds the fields of the upload form. ThumbnailURL may be a
// data: URI from the local picker; it is kept as the preview only.
type VideoDraft struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	CustomCategory string   `json:"custom_category"`
	Tags           []string `json:"tags"`
	Paid           bool     `json:"is_paid"`
	ThumbnailURL   string   `json:"thumbnail_url"`
}

type VideoQuery struct {
	Category string
	Paid     PaidFilter
	Tag      string
	Search   string
	Sort     Sort
}

// Videos is the in-memory video collection, newest first.
type Videos struct {
	mu     sync.RWMutex
	videos []*models.Video
	opts   options
}

func NewVideos(seed []*models.Video, opts ...Option) *Videos {
	o := buildOptions(opts)
	o.log = o.log.With("component", "Videos")
	return &Videos{videos: seed, opts: o}
}

func (v *Videos) Categories() []string {
	return append([]string(nil), videoCategories...)
}

// Tags returns the curated tags followed by any others in use, then "其他".
func (v *Videos) Tags() []string {
	seen := make(map[string]bool, len(curatedTags))
	out := append([]string(nil), curatedTags...)
	for _, t := range curatedTags {
		seen[t] = true
	}
	var extra []string
	v.mu.RLock()
	for _, vid := range v.videos {
		for _, t := range vid.Tags {
			if !seen[t] {
				seen[t] = true
				extra = append(extra, t)
			}
		}
	}
	v.mu.RUnlock()
	sort.Strings(extra)
	return append(append(out, extra...), OtherTag)
}

// CreateVideo prepends an uploaded video. Only practitioners may upload.
func (v *Videos) CreateVideo(viewer models.Viewer, draft VideoDraft, publish bool) (*models.Video, error) {
	if err := access.Check(viewer.Role, access.ActionUploadVideo); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(draft.Title)
	category := strings.TrimSpace(draft.Category)
	if title == "" {
		return nil, apperr.Missing("title")
	}
	if category == "" {
		return nil, apperr.Missing("category")
	}
	if category == OtherCategory {
		category = strings.TrimSpace(draft.CustomCategory)
		if category == "" {
			return nil, apperr.Missing("custom_category")
		}
	}
	thumbnail := strings.TrimSpace(draft.ThumbnailURL)
	if thumbnail == "" {
		thumbnail = DefaultThumbnailURL
	}
	status := models.StatusDraft
	if publish {
		status = models.StatusPublished
	}
	video := &models.Video{
		ID:           mintID("v"),
		Title:        title,
		Description:  strings.TrimSpace(draft.Description),
		ThumbnailURL: thumbnail,
		Duration:     DefaultDuration,
		Category:     category,
		Tags:         nonEmpty(draft.Tags),
		Paid:         draft.Paid,
		AuthorID:     viewer.ID,
		Comments:     []models.Comment{},
		CreatedAt:    v.opts.now(),
		Status:       status,
	}

	v.mu.Lock()
	v.videos = append([]*models.Video{video}, v.videos...)
	out := video.Clone()
	v.mu.Unlock()

	v.publish("created", video.ID)
	return out, nil
}

// AddComment prepends a comment so the latest shows first.
func (v *Videos) AddComment(viewer models.Viewer, videoID, text string) (*models.Comment, error) {
	if err := access.Check(viewer.Role, access.ActionComment); err != nil {
		return nil, err
	}
	v.mu.Lock()
	video := v.findVisibleLocked(viewer, videoID)
	if video == nil {
		v.mu.Unlock()
		return nil, apperr.NotFound("video", videoID)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		v.mu.Unlock()
		return nil, fmt.Errorf("%w: comment text is empty", apperr.ErrInvalidArgument)
	}
	comment := models.Comment{
		ID:        mintID("vc"),
		AuthorID:  viewer.ID,
		Text:      text,
		CreatedAt: v.opts.now(),
	}
	video.Comments = append([]models.Comment{comment}, video.Comments...)
	v.mu.Unlock()

	v.publish("commented", videoID)
	return &comment, nil
}

// Like adds one like and returns the new count.
func (v *Videos) Like(viewer models.Viewer, videoID string) (int, error) {
	if err := access.Check(viewer.Role, access.ActionLike); err != nil {
		return 0, err
	}
	v.mu.Lock()
	video := v.findVisibleLocked(viewer, videoID)
	if video == nil {
		v.mu.Unlock()
		return 0, apperr.NotFound("video", videoID)
	}
	video.Likes++
	n := video.Likes
	v.mu.Unlock()

	v.publish("liked", videoID)
	return n, nil
}

// Open plays a video: paid videos are denied to guests, and every
// permitted open counts one view.
func (v *Videos) Open(viewer models.Viewer, videoID string) (*models.Video, error) {
	v.mu.Lock()
	video := v.findVisibleLocked(viewer, videoID)
	if video == nil {
		v.mu.Unlock()
		return nil, apperr.NotFound("video", videoID)
	}
	if err := access.CheckWatch(viewer.Role, video.Paid); err != nil {
		v.mu.Unlock()
		return nil, err
	}
	video.Views++
	out := video.Clone()
	v.mu.Unlock()

	v.publish("viewed", videoID)
	return out, nil
}

// Publish moves the author's draft to published.
func (v *Videos) Publish(viewer models.Viewer, videoID string) (*models.Video, error) {
	if err := access.Check(viewer.Role, access.ActionUploadVideo); err != nil {
		return nil, err
	}
	v.mu.Lock()
	video := v.findVisibleLocked(viewer, videoID)
	if video == nil {
		v.mu.Unlock()
		return nil, apperr.NotFound("video", videoID)
	}
	if video.AuthorID != viewer.ID {
		v.mu.Unlock()
		return nil, &apperr.Denial{Action: "video:publish"}
	}
	changed := video.Status != models.StatusPublished
	video.Status = models.StatusPublished
	out := video.Clone()
	v.mu.Unlock()

	if changed {
		v.publish("published", videoID)
	}
	return out, nil
}

// Get returns the video metadata without counting a view.
func (v *Videos) Get(viewer models.Viewer, videoID string) (*models.Video, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	video := v.findVisibleLocked(viewer, videoID)
	if video == nil {
		return nil, apperr.NotFound("video", videoID)
	}
	return video.Clone(), nil
}

// Query applies every filter conjunctively, then sorts.
func (v *Videos) Query(viewer models.Viewer, q VideoQuery) []*models.Video {
	v.mu.RLock()
	out := make([]*models.Video, 0, len(v.videos))
	for _, vid := range v.videos {
		if !visibleTo(vid.Status, vid.AuthorID, viewer) {
			continue
		}
		if !matchCategory(q.Category, vid.Category) ||
			!q.Paid.match(vid.Paid) ||
			!matchTag(q.Tag, vid.Tags) ||
			!matchText(q.Search, vid.Title, vid.Description) {
			continue
		}
		out = append(out, vid.Clone())
	}
	v.mu.RUnlock()

	sortByKey(out, q.Sort,
		func(x *models.Video) string { return x.ID },
		func(x *models.Video) int { return x.Likes })
	return out
}

func (v *Videos) ByAuthor(viewer models.Viewer, authorID string) []*models.Video {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := []*models.Video{}
	for _, vid := range v.videos {
		if vid.AuthorID == authorID && visibleTo(vid.Status, vid.AuthorID, viewer) {
			out = append(out, vid.Clone())
		}
	}
	return out
}

// Featured is the first published video in store order, or nil.
func (v *Videos) Featured() *models.Video {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, vid := range v.videos {
		if vid.Status == models.StatusPublished {
			return vid.Clone()
		}
	}
	return nil
}

func matchTag(filter string, tags []string) bool {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return true
	}
	for _, t := range tags {
		if t == filter {
			return true
		}
	}
	if filter != OtherTag {
		return false
	}
	for _, t := range tags {
		for _, c := range curatedTags {
			if t == c {
				return false
			}
		}
	}
	return true
}

func (v *Videos) findVisibleLocked(viewer models.Viewer, videoID string) *models.Video {
	for _, vid := range v.videos {
		if vid.ID == videoID {
			if !visibleTo(vid.Status, vid.AuthorID, viewer) {
				return nil
			}
			return vid
		}
	}
	return nil
}

func (v *Videos) publish(kind, videoID string) {
	v.opts.events.Publish(events.Event{Topic: events.TopicVideos, Kind: kind, EntityID: videoID})
}
