package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tcmhub/internal/access"
	"tcmhub/internal/apperr"
	"tcmhub/internal/logger"
	"tcmhub/internal/models"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	defaultMaxConcurrent = 8
	defaultTimeout       = 2 * time.Minute
	defaultRatePerMinute = 20
	defaultBurst         = 3
	limiterIdleTTL       = 30 * time.Minute
)

// Asker is the assistant gateway contract.
type Asker interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// SessionStore is the subset of the session store the manager drives.
type SessionStore interface {
	AppendUserMessage(ownerID, sessionID, text string) (*models.Message, error)
	BeginReply(ownerID, sessionID string) error
	ReleaseReply(ownerID, sessionID string)
	CompleteReply(ownerID, sessionID, reply string, replyErr error) (*models.Message, error)
	LastUserText(ownerID, sessionID string) (string, error)
}

type Config struct {
	MaxConcurrent int64
	// Timeout bounds one assistant call, including time spent queued.
	Timeout       time.Duration
	RatePerMinute float64
	Burst         int
}

// Outcome is delivered once per requested reply. Message is nil when Err is set.
type Outcome struct {
	Message *models.Message
	Err     error
}

// Manager runs assistant turns off the request path. At most one turn per
// session is outstanding (the store enforces it); across sessions a
// semaphore bounds concurrent gateway calls and each owner is rate limited.
type Manager struct {
	store   SessionStore
	gateway Asker
	cfg     Config
	sem     *semaphore.Weighted
	state   *replyState
	wg      sync.WaitGroup
	log     *logger.Logger
}

func NewManager(store SessionStore, gateway Asker, cfg Config, log *logger.Logger) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = defaultRatePerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	return &Manager{
		store:   store,
		gateway: gateway,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		state:   newReplyState(),
		log:     logger.OrNop(log).With("component", "ReplyManager"),
	}
}

// Send appends the viewer's message to the session and requests a reply to
// it. A session that is already waiting rejects the turn with ErrBusy before
// anything is appended.
func (m *Manager) Send(ctx context.Context, viewer models.Viewer, sessionID, text string) (*models.Message, <-chan Outcome, error) {
	if err := access.Check(viewer.Role, access.ActionSendMessage); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil, fmt.Errorf("%w: message text is empty", apperr.ErrInvalidArgument)
	}
	if err := m.store.BeginReply(viewer.ID, sessionID); err != nil {
		return nil, nil, err
	}
	msg, err := m.store.AppendUserMessage(viewer.ID, sessionID, text)
	if err != nil {
		m.store.ReleaseReply(viewer.ID, sessionID)
		return nil, nil, err
	}
	return msg, m.dispatch(ctx, viewer.ID, sessionID, msg.Text), nil
}

// RequestReply asks the assistant about text on behalf of the session.
func (m *Manager) RequestReply(ctx context.Context, viewer models.Viewer, sessionID, text string) (<-chan Outcome, error) {
	if err := access.Check(viewer.Role, access.ActionSendMessage); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: prompt is empty", apperr.ErrInvalidArgument)
	}
	if err := m.store.BeginReply(viewer.ID, sessionID); err != nil {
		return nil, err
	}
	return m.dispatch(ctx, viewer.ID, sessionID, text), nil
}

// Retry re-asks the session's latest user message, typically after a
// gateway failure.
func (m *Manager) Retry(ctx context.Context, viewer models.Viewer, sessionID string) (<-chan Outcome, error) {
	if err := access.Check(viewer.Role, access.ActionSendMessage); err != nil {
		return nil, err
	}
	text, err := m.store.LastUserText(viewer.ID, sessionID)
	if err != nil {
		return nil, err
	}
	return m.RequestReply(ctx, viewer, sessionID, text)
}

// InFlight counts dispatched replies not yet applied.
func (m *Manager) InFlight() int {
	return m.state.count()
}

// Wait blocks until every dispatched reply has been applied.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// dispatch runs the call detached from the caller's cancellation: a reply
// cannot be aborted once requested, only bounded by the configured timeout.
func (m *Manager) dispatch(ctx context.Context, ownerID, sessionID, prompt string) <-chan Outcome {
	out := make(chan Outcome, 1)
	key := jobKey(ownerID, sessionID)
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.Timeout)

	m.wg.Add(1)
	m.state.begin(key)
	go func() {
		defer m.wg.Done()
		defer cancel()
		defer close(out)
		defer m.state.end(key)

		reply, err := m.ask(runCtx, ownerID, prompt)
		msg, err := m.store.CompleteReply(ownerID, sessionID, reply, err)
		switch {
		case err == nil:
		case errors.Is(err, apperr.ErrNotFound):
			m.log.Debug("reply dropped", "owner_id", ownerID, "session_id", sessionID)
		default:
			m.log.Warn("reply failed", "owner_id", ownerID, "session_id", sessionID, "error", err)
		}
		out <- Outcome{Message: msg, Err: err}
	}()
	return out
}

// ask waits on the owner's limiter before taking a shared slot, so an owner
// over budget never holds a slot other owners could use.
func (m *Manager) ask(ctx context.Context, ownerID, prompt string) (string, error) {
	limiter := m.state.limiter(ownerID, rate.Limit(m.cfg.RatePerMinute/60), m.cfg.Burst)
	if err := limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limited: %w", apperr.ErrGatewayFailure)
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("wait for reply slot: %w", apperr.ErrGatewayFailure)
	}
	defer m.sem.Release(1)
	return m.gateway.Ask(ctx, prompt)
}

// StartLimiterCleanup drops limiters of owners idle for a while.
func (m *Manager) StartLimiterCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.state.pruneLimiters(time.Now().Add(-limiterIdleTTL)); n > 0 {
					m.log.Debug("pruned idle limiters", "count", n)
				}
			}
		}
	}()
}

func jobKey(ownerID, sessionID string) string {
	return ownerID + "/" + sessionID
}
