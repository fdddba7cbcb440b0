package community

import (
	"errors"
	"testing"
	"time"

	"tcmhub/internal/apperr"
	"tcmhub/internal/events"
	"tcmhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	student      = models.Viewer{ID: "u2", Role: models.RoleStudent}
	practitioner = models.Viewer{ID: "u1", Role: models.RolePractitioner}
)

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, id(it))
	}
	return out
}

func postIDs(posts []*models.Post) []string {
	return ids(posts, func(p *models.Post) string { return p.ID })
}

func newTestForum() *Forum {
	return NewForum(FixturePosts(time.Now()))
}

func TestForumQuerySorts(t *testing.T) {
	f := newTestForum()
	assert.Equal(t, []string{"p3", "p2", "p1"}, postIDs(f.Query(models.Guest, PostQuery{})))
	assert.Equal(t, []string{"p1", "p2", "p3"}, postIDs(f.Query(models.Guest, PostQuery{Sort: SortOldest})))
	assert.Equal(t, []string{"p2", "p1", "p3"}, postIDs(f.Query(models.Guest, PostQuery{Sort: SortLikes})))
}

func TestForumQueryFilters(t *testing.T) {
	f := newTestForum()
	assert.Equal(t, []string{"p1"}, postIDs(f.Query(models.Guest, PostQuery{Category: "藥膳食療"})))
	assert.Len(t, f.Query(models.Guest, PostQuery{Category: AllCategories}), 3)
	assert.Equal(t, []string{"p3"}, postIDs(f.Query(models.Guest, PostQuery{Search: "腎陽虛"})))
	assert.Empty(t, f.Query(models.Guest, PostQuery{Category: "中醫理論", Search: "失眠"}))
}

func TestParseSort(t *testing.T) {
	assert.Equal(t, SortNewest, ParseSort(""))
	assert.Equal(t, SortNewest, ParseSort("bogus"))
	assert.Equal(t, SortOldest, ParseSort(" Oldest "))
	assert.Equal(t, SortLikes, ParseSort("likes"))
}

func TestCreatePostValidation(t *testing.T) {
	f := newTestForum()
	_, err := f.CreatePost(models.Guest, PostDraft{Title: "t", Content: "c", Category: "藥膳食療"}, true)
	assert.True(t, apperr.LoginRequired(err))

	tests := []struct {
		draft PostDraft
		field string
	}{
		{PostDraft{Content: "c", Category: "藥膳食療"}, "title"},
		{PostDraft{Title: "t", Content: "  ", Category: "藥膳食療"}, "content"},
		{PostDraft{Title: "t", Content: "c"}, "category"},
	}
	for _, tt := range tests {
		_, err := f.CreatePost(student, tt.draft, true)
		var ve *apperr.ValidationError
		require.True(t, errors.As(err, &ve), "expected validation error for %s", tt.field)
		assert.Equal(t, tt.field, ve.Field)
	}
	assert.Len(t, f.Query(student, PostQuery{}), 3, "rejected drafts are not stored")
}

func TestCreatePostPrependsWithDefaults(t *testing.T) {
	f := newTestForum()
	post, err := f.CreatePost(student, PostDraft{Title: " 薑湯 ", Content: "驅寒", Category: "藥膳食療"}, true)
	require.NoError(t, err)
	assert.Equal(t, "薑湯", post.Title)
	assert.Equal(t, []string{"藥膳食療"}, post.Tags)
	assert.Equal(t, student.ID, post.AuthorID)
	assert.Zero(t, post.Likes)
	assert.Empty(t, post.Comments)
	assert.Equal(t, models.StatusPublished, post.Status)
	assert.Equal(t, post, f.Latest())
}

func TestDraftsAreHiddenFromOthers(t *testing.T) {
	f := newTestForum()
	draft, err := f.CreatePost(student, PostDraft{Title: "草稿", Content: "未完", Category: "臨床經驗"}, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, draft.Status)

	for _, viewer := range []models.Viewer{models.Guest, practitioner} {
		for _, p := range f.Query(viewer, PostQuery{}) {
			assert.Equal(t, models.StatusPublished, p.Status)
		}
		_, err := f.Get(viewer, draft.ID)
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
		assert.NotContains(t, postIDs(f.ByAuthor(viewer, student.ID)), draft.ID)
	}
	assert.Contains(t, postIDs(f.Query(student, PostQuery{})), draft.ID)
	assert.NotEqual(t, draft.ID, f.Latest().ID)

	_, err = f.Publish(practitioner, draft.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	published, err := f.Publish(student, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, published.Status)
	_, err = f.Get(models.Guest, draft.ID)
	assert.NoError(t, err)
}

func TestPublishOthersPostIsDenied(t *testing.T) {
	f := newTestForum()
	_, err := f.Publish(practitioner, "p1")
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
	assert.False(t, apperr.LoginRequired(err))
}

func TestForumCommentsAppend(t *testing.T) {
	f := newTestForum()
	c, err := f.AddComment(practitioner, "p1", "早點睡")
	require.NoError(t, err)

	post, err := f.Get(models.Guest, "p1")
	require.NoError(t, err)
	require.Len(t, post.Comments, 3)
	assert.Equal(t, c.ID, post.Comments[2].ID, "forum threads are chronological")

	_, err = f.AddComment(practitioner, "p1", "   ")
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))
	_, err = f.AddComment(models.Guest, "p1", "hi")
	assert.True(t, apperr.LoginRequired(err))
	_, err = f.AddComment(practitioner, "nope", "hi")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestForumLikesAndViews(t *testing.T) {
	f := newTestForum()
	n1, err := f.Like(student, "p1")
	require.NoError(t, err)
	n2, err := f.Like(student, "p1")
	require.NoError(t, err)
	assert.Equal(t, 25, n1)
	assert.Equal(t, 26, n2)

	_, err = f.Like(models.Guest, "p1")
	assert.True(t, apperr.LoginRequired(err))

	before, _ := f.Get(models.Guest, "p2")
	viewed, err := f.View(models.Guest, "p2")
	require.NoError(t, err)
	assert.Equal(t, before.Views+1, viewed.Views)
}

func TestForumPublishesEvents(t *testing.T) {
	hub := events.NewHub()
	var got []events.Event
	hub.Subscribe(func(e events.Event) { got = append(got, e) })
	f := NewForum(FixturePosts(time.Now()), WithEvents(hub))

	_, err := f.Like(student, "p1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, events.TopicForum, got[0].Topic)
	assert.Equal(t, "liked", got[0].Kind)
	assert.Equal(t, "p1", got[0].EntityID)
}

func TestMintedIDsSortByCreation(t *testing.T) {
	f := NewForum(nil)
	first, err := f.CreatePost(student, PostDraft{Title: "a", Content: "a", Category: "x"}, true)
	require.NoError(t, err)
	second, err := f.CreatePost(student, PostDraft{Title: "b", Content: "b", Category: "x"}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID, first.ID}, postIDs(f.Query(models.Guest, PostQuery{})))
}
