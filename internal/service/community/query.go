package community

import (
	"sort"
	"strings"
	"time"

	"tcmhub/internal/events"
	"tcmhub/internal/logger"
	"tcmhub/internal/models"

	"github.com/google/uuid"
)

// AllCategories disables the category filter.
const AllCategories = "全部"

// Sort orders query results. Ids are compared lexically, so minted ids
// (prefix + UUIDv7) order by creation among themselves.
type Sort string

const (
	SortNewest Sort = "newest"
	SortOldest Sort = "oldest"
	SortLikes  Sort = "likes"
)

// ParseSort maps unknown or empty input to SortNewest.
func ParseSort(s string) Sort {
	switch Sort(strings.ToLower(strings.TrimSpace(s))) {
	case SortOldest:
		return SortOldest
	case SortLikes:
		return SortLikes
	default:
		return SortNewest
	}
}

type options struct {
	now    func() time.Time
	events events.Publisher
	log    *logger.Logger
}

type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithEvents(p events.Publisher) Option {
	return func(o *options) { o.events = events.OrDiscard(p) }
}

func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = logger.OrNop(l) }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, events: events.Discard, log: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func mintID(prefix string) string {
	return prefix + uuid.Must(uuid.NewV7()).String()
}

// visibleTo is the draft rule: only the author sees a draft.
func visibleTo(status models.Status, authorID string, viewer models.Viewer) bool {
	if status == models.StatusPublished {
		return true
	}
	return !viewer.IsGuest() && viewer.ID == authorID
}

func matchCategory(filter, category string) bool {
	return filter == "" || filter == AllCategories || filter == category
}

func matchText(query string, fields ...string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

// sortByKey orders items in place; ties keep their store order.
func sortByKey[T any](items []T, by Sort, id func(T) string, likes func(T) int) {
	switch by {
	case SortOldest:
		sort.SliceStable(items, func(i, j int) bool { return id(items[i]) < id(items[j]) })
	case SortLikes:
		sort.SliceStable(items, func(i, j int) bool { return likes(items[i]) > likes(items[j]) })
	default:
		sort.SliceStable(items, func(i, j int) bool { return id(items[i]) > id(items[j]) })
	}
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
