// Package shell keeps the top-level navigation state of each client: the
// active tab, the selected item and whether the login prompt is showing.
package shell

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tcmhub/internal/apperr"
	"tcmhub/internal/events"
	"tcmhub/internal/models"
)

type Tab string

const (
	TabHome    Tab = "home"
	TabChat    Tab = "chat"
	TabForum   Tab = "forum"
	TabVideos  Tab = "videos"
	TabProfile Tab = "profile"
)

func ParseTab(s string) (Tab, error) {
	switch t := Tab(strings.ToLower(strings.TrimSpace(s))); t {
	case TabHome, TabChat, TabForum, TabVideos, TabProfile:
		return t, nil
	case "":
		return "", nil
	}
	return "", fmt.Errorf("%w: unknown tab %q", apperr.ErrInvalidArgument, s)
}

// State is one client's shell. An empty ViewingUserID on the profile tab
// means the viewer's own profile.
type State struct {
	ActiveTab          Tab    `json:"active_tab"`
	SelectedVideoID    string `json:"selected_video_id,omitempty"`
	ViewingPostID      string `json:"viewing_post_id,omitempty"`
	ViewingUserID      string `json:"viewing_user_id,omitempty"`
	LoginPromptVisible bool   `json:"login_prompt_visible"`
}

func initialState() State {
	return State{ActiveTab: TabHome}
}

const (
	defaultCleanupInterval = 10 * time.Minute
	defaultIdleTTL         = 2 * time.Hour
)

type entry struct {
	state State
	seen  time.Time
}

// Registry holds the shell state of every client key. States of clients
// not seen for a while are pruned and start over from the home tab.
type Registry struct {
	mu     sync.Mutex
	states map[string]*entry
	events events.Publisher
	now    func() time.Time
}

func NewRegistry(pub events.Publisher) *Registry {
	return &Registry{
		states: make(map[string]*entry),
		events: events.OrDiscard(pub),
		now:    time.Now,
	}
}

// Snapshot returns the client's state without creating one.
func (r *Registry) Snapshot(key string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.states[key]; ok {
		e.seen = r.now()
		return e.state
	}
	return initialState()
}

// Touch marks a client as active so its state survives pruning.
func (r *Registry) Touch(key string) {
	r.mu.Lock()
	if e, ok := r.states[key]; ok {
		e.seen = r.now()
	}
	r.mu.Unlock()
}

// Prune drops states idle longer than idle and reports how many went.
func (r *Registry) Prune(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-idle)
	n := 0
	for key, e := range r.states {
		if e.seen.Before(cutoff) {
			delete(r.states, key)
			n++
		}
	}
	return n
}

// StartCleanup prunes idle states every interval until ctx is done.
func (r *Registry) StartCleanup(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	if idle <= 0 {
		idle = defaultIdleTTL
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Prune(idle)
			}
		}
	}()
}

// NavigateTo switches tabs. With a target it deep-links: the target's tab
// becomes active and the item is selected. Without one, the selection of
// the destination tab is cleared.
func (r *Registry) NavigateTo(key string, tab Tab, target *models.Target) (State, error) {
	if target != nil {
		targetTab, err := tabFor(target)
		if err != nil {
			return State{}, err
		}
		if tab != "" && tab != targetTab {
			return State{}, fmt.Errorf("%w: %s target cannot open on the %s tab", apperr.ErrInvalidArgument, target.Kind, tab)
		}
		tab = targetTab
	}
	if tab == "" {
		return State{}, fmt.Errorf("%w: tab is required", apperr.ErrInvalidArgument)
	}

	return r.mutate(key, "navigated", func(s *State) {
		s.ActiveTab = tab
		switch {
		case target != nil && target.Kind == models.TargetPost:
			s.ViewingPostID = target.ID
		case target != nil && target.Kind == models.TargetVideo:
			s.SelectedVideoID = target.ID
		case tab == TabForum:
			s.ViewingPostID = ""
		case tab == TabVideos:
			s.SelectedVideoID = ""
		case tab == TabProfile:
			s.ViewingUserID = ""
		}
	}), nil
}

// OpenChat switches to the chat tab, e.g. after a session is activated.
func (r *Registry) OpenChat(key string) State {
	return r.mutate(key, "navigated", func(s *State) { s.ActiveTab = TabChat })
}

func (r *Registry) OpenVideo(key, videoID string) State {
	return r.mutate(key, "video_opened", func(s *State) {
		s.ActiveTab = TabVideos
		s.SelectedVideoID = videoID
	})
}

func (r *Registry) OpenPost(key, postID string) State {
	return r.mutate(key, "post_opened", func(s *State) {
		s.ActiveTab = TabForum
		s.ViewingPostID = postID
	})
}

// ViewUser opens another member's profile.
func (r *Registry) ViewUser(key, userID string) State {
	return r.mutate(key, "user_viewed", func(s *State) {
		s.ActiveTab = TabProfile
		s.ViewingUserID = userID
	})
}

// PromptLogin shows the login chooser; raised whenever a guest is denied.
func (r *Registry) PromptLogin(key string) State {
	return r.mutate(key, "login_prompted", func(s *State) { s.LoginPromptVisible = true })
}

func (r *Registry) DismissLogin(key string) State {
	return r.mutate(key, "login_dismissed", func(s *State) { s.LoginPromptVisible = false })
}

// Login hides the prompt and leaves the client where it was.
func (r *Registry) Login(key string) State {
	return r.mutate(key, "logged_in", func(s *State) { s.LoginPromptVisible = false })
}

// Logout returns the client to the home tab with nothing selected.
func (r *Registry) Logout(key string) State {
	return r.mutate(key, "logged_out", func(s *State) { *s = initialState() })
}

// OpenNotification follows a notification's target, if it has one.
func (r *Registry) OpenNotification(key string, n *models.Notification) (State, error) {
	if n == nil || n.Target == nil {
		return r.Snapshot(key), nil
	}
	return r.NavigateTo(key, "", n.Target)
}

func (r *Registry) mutate(key, kind string, fn func(*State)) State {
	r.mu.Lock()
	e := r.entryLocked(key)
	fn(&e.state)
	e.seen = r.now()
	out := e.state
	r.mu.Unlock()

	r.events.Publish(events.Event{Topic: events.TopicShell, Kind: kind, OwnerID: key})
	return out
}

func (r *Registry) entryLocked(key string) *entry {
	e, ok := r.states[key]
	if !ok {
		e = &entry{state: initialState()}
		r.states[key] = e
	}
	return e
}

func tabFor(t *models.Target) (Tab, error) {
	switch t.Kind {
	case models.TargetPost:
		return TabForum, nil
	case models.TargetVideo:
		return TabVideos, nil
	}
	return "", fmt.Errorf("%w: unknown target kind %q", apperr.ErrInvalidArgument, t.Kind)
}
