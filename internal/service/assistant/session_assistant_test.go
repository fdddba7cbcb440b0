package assistant

import (
	"errors"
	"sync"
	"testing"
	"time"

	"tcmhub/internal/apperr"
	"tcmhub/internal/events"
	"tcmhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var student = models.Viewer{ID: "u2", Role: models.RoleStudent}

// stepClock advances one second per call so every mutation gets a distinct time.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

func newSeededService(t *testing.T) *Service {
	t.Helper()
	return NewService(WithSeed(FixtureSessions), WithClock(stepClock(time.Now())))
}

func assertSortedDesc(t *testing.T, sessions []*models.ChatSession) {
	t.Helper()
	for i := 1; i < len(sessions); i++ {
		assert.False(t, sessions[i].LastModified.After(sessions[i-1].LastModified),
			"session %s is newer than %s", sessions[i].ID, sessions[i-1].ID)
	}
}

func TestSeededBookStartsOnHead(t *testing.T) {
	s := newSeededService(t)
	list := s.ListSessions(student.ID)
	require.Len(t, list, 2)
	assert.Equal(t, "s1", list[0].ID)
	assert.Equal(t, "s1", s.ActiveSessionID(student.ID))
	assertSortedDesc(t, list)
}

func TestCreateSessionPrependsAndActivates(t *testing.T) {
	s := newSeededService(t)
	session, err := s.CreateSession(student)
	require.NoError(t, err)

	assert.Equal(t, DefaultTitle, session.Title)
	require.Len(t, session.Messages, 1)
	assert.Equal(t, models.MessageRoleAssistant, session.Messages[0].Role)
	assert.Equal(t, Greeting, session.Messages[0].Text)

	list := s.ListSessions(student.ID)
	require.Len(t, list, 3)
	assert.Equal(t, session.ID, list[0].ID)
	assert.Equal(t, session.ID, s.ActiveSessionID(student.ID))
	assertSortedDesc(t, list)
}

func TestGuestCannotCreateSession(t *testing.T) {
	s := newSeededService(t)
	_, err := s.CreateSession(models.Guest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
	assert.True(t, apperr.LoginRequired(err))
}

func TestOwnersAreIsolated(t *testing.T) {
	s := NewService()
	other := models.Viewer{ID: "u1", Role: models.RolePractitioner}
	mine, err := s.CreateSession(student)
	require.NoError(t, err)

	assert.Empty(t, s.ListSessions(other.ID))
	_, err = s.GetSession(other.ID, mine.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestDeleteActiveMovesToHead(t *testing.T) {
	s := newSeededService(t)
	require.NoError(t, s.DeleteSession(student.ID, "s1"))
	assert.Equal(t, "s2", s.ActiveSessionID(student.ID))

	require.NoError(t, s.DeleteSession(student.ID, "s2"))
	assert.Equal(t, "", s.ActiveSessionID(student.ID))
	assert.Empty(t, s.ListSessions(student.ID))

	err := s.DeleteSession(student.ID, "s2")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestDeleteInactiveKeepsActive(t *testing.T) {
	s := newSeededService(t)
	require.NoError(t, s.SetActive(student.ID, "s1"))
	require.NoError(t, s.DeleteSession(student.ID, "s2"))
	assert.Equal(t, "s1", s.ActiveSessionID(student.ID))
}

func TestSetActiveUnknownSession(t *testing.T) {
	s := newSeededService(t)
	err := s.SetActive(student.ID, "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, "s1", s.ActiveSessionID(student.ID))
}

func TestAppendUserMessageDerivesTitleOnce(t *testing.T) {
	s := newSeededService(t)
	session, err := s.CreateSession(student)
	require.NoError(t, err)

	_, err = s.AppendUserMessage(student.ID, session.ID, "  失眠該怎麼辦很久了  ")
	require.NoError(t, err)
	got, err := s.GetSession(student.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "失眠該怎麼辦很久了...", got.Title)

	_, err = s.AppendUserMessage(student.ID, session.ID, "還有頭暈的情況")
	require.NoError(t, err)
	got, err = s.GetSession(student.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "失眠該怎麼辦很久了...", got.Title, "title is derived only from the first message")
	assert.Len(t, got.Messages, 3)
}

func TestAppendMovesSessionToHead(t *testing.T) {
	s := newSeededService(t)
	_, err := s.AppendUserMessage(student.ID, "s2", "還想問羊肉湯怎麼煮")
	require.NoError(t, err)

	list := s.ListSessions(student.ID)
	assert.Equal(t, "s2", list[0].ID)
	assert.Equal(t, "冬季進補建議", list[0].Title, "non-placeholder titles are kept")
	assertSortedDesc(t, list)
}

func TestAppendRejectsBlankAndUnknown(t *testing.T) {
	s := newSeededService(t)
	_, err := s.AppendUserMessage(student.ID, "s1", "   ")
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))

	_, err = s.AppendUserMessage(student.ID, "missing", "hello")
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))

	got, err := s.GetSession(student.ID, "s1")
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "胃痛...", DeriveTitle("胃痛"))
	assert.Equal(t, "一二三四五六七八九十...", DeriveTitle("一二三四五六七八九十十一"))
	assert.Equal(t, "abcdefghij...", DeriveTitle("abcdefghijklmnop"))
}

func TestBeginReplyIsExclusive(t *testing.T) {
	s := newSeededService(t)
	require.NoError(t, s.BeginReply(student.ID, "s1"))

	err := s.BeginReply(student.ID, "s1")
	assert.True(t, errors.Is(err, apperr.ErrBusy))
	assert.NoError(t, s.BeginReply(student.ID, "s2"), "other sessions are independent")

	s.ReleaseReply(student.ID, "s1")
	assert.NoError(t, s.BeginReply(student.ID, "s1"))

	err = s.BeginReply(student.ID, "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCompleteReplySuccess(t *testing.T) {
	s := newSeededService(t)
	require.NoError(t, s.BeginReply(student.ID, "s1"))

	msg, err := s.CompleteReply(student.ID, "s1", "多按合谷穴。", nil)
	require.NoError(t, err)
	assert.Equal(t, models.MessageRoleAssistant, msg.Role)

	got, err := s.GetSession(student.ID, "s1")
	require.NoError(t, err)
	assert.False(t, got.Thinking)
	assert.Empty(t, got.LastError)
	assert.Equal(t, "多按合谷穴。", got.Messages[len(got.Messages)-1].Text)
}

func TestCompleteReplyFailureRecordsError(t *testing.T) {
	s := newSeededService(t)
	require.NoError(t, s.BeginReply(student.ID, "s1"))

	replyErr := apperr.ErrGatewayFailure
	_, err := s.CompleteReply(student.ID, "s1", "", replyErr)
	assert.True(t, errors.Is(err, apperr.ErrGatewayFailure))

	got, err := s.GetSession(student.ID, "s1")
	require.NoError(t, err)
	assert.False(t, got.Thinking)
	assert.NotEmpty(t, got.LastError)
	assert.Len(t, got.Messages, 2, "no assistant message on failure")

	require.NoError(t, s.BeginReply(student.ID, "s1"))
	got, _ = s.GetSession(student.ID, "s1")
	assert.Empty(t, got.LastError, "a new attempt clears the previous error")
}

func TestCompleteReplyForDeletedSessionIsDropped(t *testing.T) {
	s := newSeededService(t)
	require.NoError(t, s.BeginReply(student.ID, "s1"))
	require.NoError(t, s.DeleteSession(student.ID, "s1"))

	_, err := s.CompleteReply(student.ID, "s1", "late reply", nil)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	for _, se := range s.ListSessions(student.ID) {
		assert.NotEqual(t, "s1", se.ID)
	}
}

func TestLastUserText(t *testing.T) {
	s := newSeededService(t)
	text, err := s.LastUserText(student.ID, "s2")
	require.NoError(t, err)
	assert.Equal(t, "冬天手腳冰冷吃什麼好？", text)

	fresh, err := s.CreateSession(student)
	require.NoError(t, err)
	_, err = s.LastUserText(student.ID, fresh.ID)
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))
}

func TestSnapshotsAreDetached(t *testing.T) {
	s := newSeededService(t)
	got, err := s.GetSession(student.ID, "s1")
	require.NoError(t, err)
	got.Title = "changed"
	got.Messages[0].Text = "changed"

	again, err := s.GetSession(student.ID, "s1")
	require.NoError(t, err)
	assert.Equal(t, "頭痛舒緩諮詢", again.Title)
	assert.NotEqual(t, "changed", again.Messages[0].Text)
}

func TestMutationsPublishEvents(t *testing.T) {
	hub := events.NewHub()
	var kinds []string
	hub.Subscribe(func(e events.Event) {
		assert.Equal(t, events.TopicSessions, e.Topic)
		assert.Equal(t, student.ID, e.OwnerID)
		kinds = append(kinds, e.Kind)
	})
	s := NewService(WithEvents(hub))

	session, err := s.CreateSession(student)
	require.NoError(t, err)
	_, err = s.AppendUserMessage(student.ID, session.ID, "你好")
	require.NoError(t, err)
	require.NoError(t, s.DeleteSession(student.ID, session.ID))

	assert.Equal(t, []string{"created", "message_appended", "deleted"}, kinds)
}
