package assistant

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tcmhub/internal/access"
	"tcmhub/internal/apperr"
	"tcmhub/internal/events"
	"tcmhub/internal/logger"
	"tcmhub/internal/models"

	"github.com/google/uuid"
)

const (
	// DefaultTitle is the placeholder title replaced by the first user message.
	DefaultTitle = "新對話"
	Greeting     = "您好！我是您的中醫 AI 助手。請問今天有什麼可以幫您的嗎？"
	titleRunes   = 10
	titleSuffix  = "..."
)

var defaultTags = []string{"一般"}

// book is one owner's ordered session list, most recently modified first.
type book struct {
	sessions []*models.ChatSession
	activeID string
}

// SeedFunc returns the sessions a new owner starts with.
type SeedFunc func(ownerID string, now time.Time) []*models.ChatSession

// Service is the chat session store. Each owner has an independent list and
// active pointer; all mutations run under one mutex.
type Service struct {
	mu     sync.Mutex
	books  map[string]*book
	seed   SeedFunc
	now    func() time.Time
	events events.Publisher
	log    *logger.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithSeed(seed SeedFunc) Option {
	return func(s *Service) { s.seed = seed }
}

func WithEvents(p events.Publisher) Option {
	return func(s *Service) { s.events = events.OrDiscard(p) }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = logger.OrNop(l) }
}

// NewService constructs an empty session store.
func NewService(opts ...Option) *Service {
	s := &Service{
		books:  make(map[string]*book),
		now:    time.Now,
		events: events.Discard,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "SessionStore")
	return s
}

// CreateSession starts a conversation seeded with the assistant greeting,
// inserts it at the head and makes it active.
func (s *Service) CreateSession(viewer models.Viewer) (*models.ChatSession, error) {
	if err := access.Check(viewer.Role, access.ActionStartChat); err != nil {
		return nil, err
	}

	s.mu.Lock()
	b := s.bookLocked(viewer.ID)
	now := s.now()
	session := &models.ChatSession{
		ID:      uuid.Must(uuid.NewV7()).String(),
		OwnerID: viewer.ID,
		Title:   DefaultTitle,
		Messages: []models.Message{{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Role:      models.MessageRoleAssistant,
			Text:      Greeting,
			CreatedAt: now,
		}},
		LastModified: now,
		Tags:         append([]string(nil), defaultTags...),
	}
	b.sessions = append([]*models.ChatSession{session}, b.sessions...)
	b.activeID = session.ID
	out := session.Clone()
	s.mu.Unlock()

	s.publish("created", viewer.ID, session.ID)
	return out, nil
}

// DeleteSession removes a session. Deleting the active session moves the
// active pointer to the new head, or clears it when none remain.
func (s *Service) DeleteSession(ownerID, sessionID string) error {
	s.mu.Lock()
	b := s.bookLocked(ownerID)
	idx := indexOf(b, sessionID)
	if idx < 0 {
		s.mu.Unlock()
		return apperr.NotFound("session", sessionID)
	}
	b.sessions = append(b.sessions[:idx], b.sessions[idx+1:]...)
	if b.activeID == sessionID {
		b.activeID = ""
		if len(b.sessions) > 0 {
			b.activeID = b.sessions[0].ID
		}
	}
	s.mu.Unlock()

	s.publish("deleted", ownerID, sessionID)
	return nil
}

// SetActive points the owner's active session at sessionID.
func (s *Service) SetActive(ownerID, sessionID string) error {
	s.mu.Lock()
	b := s.bookLocked(ownerID)
	if indexOf(b, sessionID) < 0 {
		s.mu.Unlock()
		return apperr.NotFound("session", sessionID)
	}
	b.activeID = sessionID
	s.mu.Unlock()

	s.publish("activated", ownerID, sessionID)
	return nil
}

// ActiveSessionID returns the active session id, or "" when there is none.
func (s *Service) ActiveSessionID(ownerID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookLocked(ownerID).activeID
}

// ListSessions returns snapshots in display order.
func (s *Service) ListSessions(ownerID string) []*models.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bookLocked(ownerID)
	out := make([]*models.ChatSession, 0, len(b.sessions))
	for _, se := range b.sessions {
		out = append(out, se.Clone())
	}
	return out
}

func (s *Service) GetSession(ownerID, sessionID string) (*models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bookLocked(ownerID)
	idx := indexOf(b, sessionID)
	if idx < 0 {
		return nil, apperr.NotFound("session", sessionID)
	}
	return b.sessions[idx].Clone(), nil
}

// AppendUserMessage records a user turn, touches lastModified, replaces the
// placeholder title and re-sorts the owner's sessions.
func (s *Service) AppendUserMessage(ownerID, sessionID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message text is empty", apperr.ErrInvalidArgument)
	}

	s.mu.Lock()
	b := s.bookLocked(ownerID)
	idx := indexOf(b, sessionID)
	if idx < 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: session %s not found", apperr.ErrInvalidArgument, sessionID)
	}
	session := b.sessions[idx]
	now := s.now()
	msg := models.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Role:      models.MessageRoleUser,
		Text:      text,
		CreatedAt: now,
	}
	session.Messages = append(session.Messages, msg)
	session.LastModified = now
	if session.Title == DefaultTitle {
		session.Title = DeriveTitle(text)
	}
	sort.SliceStable(b.sessions, func(i, j int) bool {
		return b.sessions[i].LastModified.After(b.sessions[j].LastModified)
	})
	s.mu.Unlock()

	s.publish("message_appended", ownerID, sessionID)
	return &msg, nil
}

// BeginReply marks the session pending. A session already waiting on a
// reply is rejected with ErrBusy.
func (s *Service) BeginReply(ownerID, sessionID string) error {
	s.mu.Lock()
	b := s.bookLocked(ownerID)
	idx := indexOf(b, sessionID)
	if idx < 0 {
		s.mu.Unlock()
		return apperr.NotFound("session", sessionID)
	}
	session := b.sessions[idx]
	if session.Thinking {
		s.mu.Unlock()
		return fmt.Errorf("session %s awaiting reply: %w", sessionID, apperr.ErrBusy)
	}
	session.Thinking = true
	session.LastError = ""
	s.mu.Unlock()

	s.publish("thinking", ownerID, sessionID)
	return nil
}

// ReleaseReply clears the pending flag without recording an outcome; used
// when a turn is abandoned before the assistant was called.
func (s *Service) ReleaseReply(ownerID, sessionID string) {
	s.mu.Lock()
	b := s.bookLocked(ownerID)
	idx := indexOf(b, sessionID)
	if idx < 0 || !b.sessions[idx].Thinking {
		s.mu.Unlock()
		return
	}
	b.sessions[idx].Thinking = false
	s.mu.Unlock()

	s.publish("idle", ownerID, sessionID)
}

// CompleteReply applies the outcome of an assistant call. If the session was
// deleted meanwhile the result is dropped and ErrNotFound returned. A
// failure clears the pending flag, records LastError and is returned as is.
func (s *Service) CompleteReply(ownerID, sessionID, reply string, replyErr error) (*models.Message, error) {
	s.mu.Lock()
	b := s.bookLocked(ownerID)
	idx := indexOf(b, sessionID)
	if idx < 0 {
		s.mu.Unlock()
		s.log.Info("discard reply for deleted session", "owner_id", ownerID, "session_id", sessionID)
		return nil, apperr.NotFound("session", sessionID)
	}
	session := b.sessions[idx]
	session.Thinking = false

	if replyErr != nil {
		session.LastError = replyErr.Error()
		s.mu.Unlock()
		s.publish("reply_failed", ownerID, sessionID)
		return nil, replyErr
	}

	msg := models.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Role:      models.MessageRoleAssistant,
		Text:      reply,
		CreatedAt: s.now(),
	}
	session.Messages = append(session.Messages, msg)
	s.mu.Unlock()

	s.publish("replied", ownerID, sessionID)
	return &msg, nil
}

// LastUserText returns the most recent user message, used to retry a failed turn.
func (s *Service) LastUserText(ownerID, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bookLocked(ownerID)
	idx := indexOf(b, sessionID)
	if idx < 0 {
		return "", apperr.NotFound("session", sessionID)
	}
	msgs := b.sessions[idx].Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.MessageRoleUser {
			return msgs[i].Text, nil
		}
	}
	return "", fmt.Errorf("%w: session %s has no user message", apperr.ErrInvalidArgument, sessionID)
}

// DeriveTitle keeps the first ten characters of text and marks the cut.
func DeriveTitle(text string) string {
	r := []rune(text)
	if len(r) > titleRunes {
		r = r[:titleRunes]
	}
	return string(r) + titleSuffix
}

func (s *Service) bookLocked(ownerID string) *book {
	b, ok := s.books[ownerID]
	if ok {
		return b
	}
	b = &book{}
	if s.seed != nil {
		b.sessions = s.seed(ownerID, s.now())
		if len(b.sessions) > 0 {
			b.activeID = b.sessions[0].ID
		}
	}
	s.books[ownerID] = b
	return b
}

func indexOf(b *book, sessionID string) int {
	for i, se := range b.sessions {
		if se.ID == sessionID {
			return i
		}
	}
	return -1
}

func (s *Service) publish(kind, ownerID, sessionID string) {
	s.events.Publish(events.Event{
		Topic:    events.TopicSessions,
		Kind:     kind,
		OwnerID:  ownerID,
		EntityID: sessionID,
	})
}
