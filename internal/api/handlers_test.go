package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tcmhub/internal/auth"
	"tcmhub/internal/config"
	"tcmhub/internal/events"
	"tcmhub/internal/service/assistant"
	"tcmhub/internal/service/community"
	"tcmhub/internal/service/profile"
	"tcmhub/internal/shell"
	"tcmhub/internal/storage"
	"tcmhub/internal/worker"
)

type fakeAsker struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (f *fakeAsker) Ask(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.reply, f.err
}

func (f *fakeAsker) set(reply string, err error) {
	f.mu.Lock()
	f.reply, f.err = reply, err
	f.mu.Unlock()
}

type sseEvent struct {
	Name string
	Data string
}

func TestLoginAndMe(t *testing.T) {
	router, _ := newTestServer(t)

	headers := loginAs(t, router, "student")
	resp := doJSONRequest(t, router, http.MethodGet, "/api/me", nil, headers)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		User struct {
			ID    string `json:"id"`
			Role  string `json:"role"`
			Label string `json:"role_label"`
		} `json:"user"`
		UnreadCount int      `json:"unread_count"`
		Permissions []string `json:"permissions"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.User.ID != profile.StudentPresetID || body.User.Role != "student" {
		t.Fatalf("unexpected user %+v", body.User)
	}
	if !contains(body.Permissions, "chat:start") || contains(body.Permissions, "video:upload") {
		t.Fatalf("unexpected permissions %v", body.Permissions)
	}

	logout := doJSONRequest(t, router, http.MethodPost, "/api/logout", nil, headers)
	assertStatus(t, logout, http.StatusOK)
	after := doJSONRequest(t, router, http.MethodGet, "/api/me", nil, headers)
	assertStatus(t, after, http.StatusOK)
	decodeJSON(t, after.Body.Bytes(), &body)
	if body.User.Role != "guest" {
		t.Fatalf("revoked token should fall back to guest, got %q", body.User.Role)
	}
}

func TestLogoutAllRevokesEveryToken(t *testing.T) {
	router, _ := newTestServer(t)
	laptop := loginAs(t, router, "student")
	phone := loginAs(t, router, "student")

	resp := doJSONRequest(t, router, http.MethodPost, "/api/logout?all=true", nil, laptop)
	assertStatus(t, resp, http.StatusOK)

	me := doJSONRequest(t, router, http.MethodGet, "/api/me", nil, phone)
	assertStatus(t, me, http.StatusOK)
	var body struct {
		User struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	decodeJSON(t, me.Body.Bytes(), &body)
	if body.User.Role != "guest" {
		t.Fatalf("other device should be signed out, got %q", body.User.Role)
	}
}

func TestForgedClientKeyIsReplaced(t *testing.T) {
	router, _ := newTestServer(t)
	key := newClientKey(t, router)
	prompt := doJSONRequest(t, router, http.MethodPost, "/api/shell/login-prompt", nil, map[string]string{"X-Client-Key": key})
	assertStatus(t, prompt, http.StatusOK)

	last := key[len(key)-1:]
	flipped := "0"
	if last == "0" {
		flipped = "1"
	}
	for _, forged := range []string{"guest", profile.StudentPresetID, key[:len(key)-1] + flipped, strings.SplitN(key, ".", 2)[0]} {
		resp := doJSONRequest(t, router, http.MethodGet, "/api/shell", nil, map[string]string{"X-Client-Key": forged})
		assertStatus(t, resp, http.StatusOK)
		minted := resp.Header().Get("X-Client-Key")
		if minted == "" || minted == forged || minted == key {
			t.Fatalf("forged key %q should be replaced, got %q", forged, minted)
		}
		var state shell.State
		decodeJSON(t, resp.Body.Bytes(), &state)
		if state.LoginPromptVisible {
			t.Fatalf("forged key %q reached another client's shell", forged)
		}
	}

	own := doJSONRequest(t, router, http.MethodGet, "/api/shell", nil, map[string]string{"X-Client-Key": key})
	var state shell.State
	decodeJSON(t, own.Body.Bytes(), &state)
	if !state.LoginPromptVisible || own.Header().Get("X-Client-Key") != "" {
		t.Fatalf("signed key should keep its shell: %+v", state)
	}
}

func TestActivateSessionOpensChat(t *testing.T) {
	router, _ := newTestServer(t)
	headers := loginAs(t, router, "student")
	resp := doJSONRequest(t, router, http.MethodPost, "/api/chat/sessions/s2/activate", nil, headers)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		ActiveSessionID string      `json:"active_session_id"`
		Shell           shell.State `json:"shell"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.ActiveSessionID != "s2" || body.Shell.ActiveTab != shell.TabChat {
		t.Fatalf("unexpected activation result %+v", body)
	}
}

func TestLoginRejectsUnknownPreset(t *testing.T) {
	router, _ := newTestServer(t)
	resp := doJSONRequest(t, router, http.MethodPost, "/api/login", map[string]string{"preset": "admin"}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestGuestDenialRaisesLoginPrompt(t *testing.T) {
	router, _ := newTestServer(t)
	headers := map[string]string{"X-Client-Key": newClientKey(t, router)}

	resp := doJSONRequest(t, router, http.MethodPost, "/api/posts", map[string]string{
		"title": "t", "content": "c", "category": "養生",
	}, headers)
	assertStatus(t, resp, http.StatusUnauthorized)
	var body struct {
		LoginRequired bool `json:"login_required"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if !body.LoginRequired {
		t.Fatalf("expected login_required flag")
	}

	st := doJSONRequest(t, router, http.MethodGet, "/api/shell", nil, headers)
	assertStatus(t, st, http.StatusOK)
	var state shell.State
	decodeJSON(t, st.Body.Bytes(), &state)
	if !state.LoginPromptVisible {
		t.Fatalf("login prompt should be visible after a guest denial")
	}
}

func TestMemberDenialIsForbidden(t *testing.T) {
	router, _ := newTestServer(t)
	headers := loginAs(t, router, "student")
	resp := doJSONRequest(t, router, http.MethodPost, "/api/videos", map[string]any{
		"title": "t", "description": "d", "category": "針灸推拿",
	}, headers)
	assertStatus(t, resp, http.StatusForbidden)
}

func TestChatSendStreamsReply(t *testing.T) {
	router, asker := newTestServer(t)
	asker.set("多休息，少熬夜。", nil)
	headers := loginAs(t, router, "student")

	created := doJSONRequest(t, router, http.MethodPost, "/api/chat/sessions", nil, headers)
	assertStatus(t, created, http.StatusCreated)
	var session struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	decodeJSON(t, created.Body.Bytes(), &session)
	if session.Title != assistant.DefaultTitle {
		t.Fatalf("unexpected title %q", session.Title)
	}

	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/chat/sessions/%s/messages", session.ID),
		map[string]string{"text": "失眠該怎麼辦很久了"}, headers)
	assertStatus(t, resp, http.StatusOK)
	evts := parseSSE(t, resp.Body.String())
	if len(evts) != 2 || evts[0].Name != "ack" || evts[1].Name != "done" {
		t.Fatalf("unexpected events %+v", evts)
	}
	var done struct {
		Message struct {
			Role string `json:"role"`
			Text string `json:"text"`
		} `json:"message"`
		Session struct {
			Title    string            `json:"title"`
			Thinking bool              `json:"thinking"`
			Messages []json.RawMessage `json:"messages"`
		} `json:"session"`
	}
	decodeJSON(t, []byte(evts[1].Data), &done)
	if done.Message.Role != "assistant" || done.Message.Text != "多休息，少熬夜。" {
		t.Fatalf("unexpected reply %+v", done.Message)
	}
	if done.Session.Title != "失眠該怎麼辦很久了..." || done.Session.Thinking {
		t.Fatalf("unexpected session state %+v", done.Session)
	}
	if len(done.Session.Messages) != 3 {
		t.Fatalf("expected greeting, question and reply, got %d messages", len(done.Session.Messages))
	}

	list := doJSONRequest(t, router, http.MethodGet, "/api/chat/sessions", nil, headers)
	assertStatus(t, list, http.StatusOK)
	var listed struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
		ActiveID string `json:"active_session_id"`
	}
	decodeJSON(t, list.Body.Bytes(), &listed)
	if len(listed.Sessions) == 0 || listed.Sessions[0].ID != session.ID || listed.ActiveID != session.ID {
		t.Fatalf("updated session should lead the list and stay active: %+v", listed)
	}
}

func TestChatGatewayFailureAndRetry(t *testing.T) {
	router, asker := newTestServer(t)
	asker.set("", errors.New("upstream down"))
	headers := loginAs(t, router, "practitioner")

	created := doJSONRequest(t, router, http.MethodPost, "/api/chat/sessions", nil, headers)
	assertStatus(t, created, http.StatusCreated)
	var session struct {
		ID string `json:"id"`
	}
	decodeJSON(t, created.Body.Bytes(), &session)

	path := fmt.Sprintf("/api/chat/sessions/%s", session.ID)
	resp := doJSONRequest(t, router, http.MethodPost, path+"/messages", map[string]string{"text": "胃脹氣"}, headers)
	assertStatus(t, resp, http.StatusOK)
	evts := parseSSE(t, resp.Body.String())
	if len(evts) != 2 || evts[1].Name != "error" {
		t.Fatalf("expected ack then error, got %+v", evts)
	}

	got := doJSONRequest(t, router, http.MethodGet, path, nil, headers)
	assertStatus(t, got, http.StatusOK)
	var failed struct {
		LastError string `json:"last_error"`
		Thinking  bool   `json:"thinking"`
	}
	decodeJSON(t, got.Body.Bytes(), &failed)
	if failed.LastError == "" || failed.Thinking {
		t.Fatalf("failure should be recorded and the session released: %+v", failed)
	}

	asker.set("可以試試按摩足三里。", nil)
	retry := doJSONRequest(t, router, http.MethodPost, path+"/retry", nil, headers)
	assertStatus(t, retry, http.StatusOK)
	evts = parseSSE(t, retry.Body.String())
	if len(evts) != 2 || evts[1].Name != "done" {
		t.Fatalf("expected retry to succeed, got %+v", evts)
	}
}

func TestGuestCannotStartChat(t *testing.T) {
	router, _ := newTestServer(t)
	resp := doJSONRequest(t, router, http.MethodPost, "/api/chat/sessions", nil, nil)
	assertStatus(t, resp, http.StatusUnauthorized)
	del := doJSONRequest(t, router, http.MethodDelete, "/api/chat/sessions/s1", nil, nil)
	assertStatus(t, del, http.StatusUnauthorized)
}

func TestForumCreateAndFilter(t *testing.T) {
	router, _ := newTestServer(t)
	headers := loginAs(t, router, "practitioner")

	published := doJSONRequest(t, router, http.MethodPost, "/api/posts", map[string]any{
		"title": "秋季潤肺", "content": "白木耳蓮子湯。", "category": "藥膳食療", "publish": true,
	}, headers)
	assertStatus(t, published, http.StatusCreated)
	draft := doJSONRequest(t, router, http.MethodPost, "/api/posts", map[string]any{
		"title": "草稿", "content": "尚未完成", "category": "藥膳食療",
	}, headers)
	assertStatus(t, draft, http.StatusCreated)
	var draftPost struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeJSON(t, draft.Body.Bytes(), &draftPost)
	if draftPost.Status != "draft" {
		t.Fatalf("post without publish flag should be a draft, got %q", draftPost.Status)
	}

	missing := doJSONRequest(t, router, http.MethodPost, "/api/posts", map[string]any{
		"title": "", "content": "x", "category": "藥膳食療",
	}, headers)
	assertStatus(t, missing, http.StatusBadRequest)

	guest := doJSONRequest(t, router, http.MethodGet, "/api/posts?category=藥膳食療&sort=oldest", nil, nil)
	assertStatus(t, guest, http.StatusOK)
	var list struct {
		Posts []struct {
			ID     string `json:"id"`
			Title  string `json:"title"`
			Status string `json:"status"`
		} `json:"posts"`
	}
	decodeJSON(t, guest.Body.Bytes(), &list)
	found := false
	for _, p := range list.Posts {
		if p.Status != "published" {
			t.Fatalf("guest listing leaked draft %s", p.ID)
		}
		if p.Title == "秋季潤肺" {
			found = true
		}
	}
	if !found {
		t.Fatalf("published post missing from category listing")
	}

	hidden := doJSONRequest(t, router, http.MethodGet, "/api/posts/"+draftPost.ID, nil, nil)
	assertStatus(t, hidden, http.StatusNotFound)
	own := doJSONRequest(t, router, http.MethodGet, "/api/posts/"+draftPost.ID, nil, headers)
	assertStatus(t, own, http.StatusOK)
}

func TestPaidVideoGate(t *testing.T) {
	router, _ := newTestServer(t)
	guestHeaders := map[string]string{"X-Client-Key": newClientKey(t, router)}

	free := doJSONRequest(t, router, http.MethodGet, "/api/videos/v1", nil, guestHeaders)
	assertStatus(t, free, http.StatusOK)
	paid := doJSONRequest(t, router, http.MethodGet, "/api/videos/v2", nil, guestHeaders)
	assertStatus(t, paid, http.StatusUnauthorized)

	headers := loginAs(t, router, "student")
	ok := doJSONRequest(t, router, http.MethodGet, "/api/videos/v2", nil, headers)
	assertStatus(t, ok, http.StatusOK)

	history := doJSONRequest(t, router, http.MethodGet, "/api/users/me/history", nil, headers)
	assertStatus(t, history, http.StatusOK)
	var body struct {
		Videos []struct {
			ID string `json:"id"`
		} `json:"videos"`
	}
	decodeJSON(t, history.Body.Bytes(), &body)
	if len(body.Videos) == 0 || body.Videos[0].ID != "v2" {
		t.Fatalf("opened video should lead the history: %+v", body.Videos)
	}
}

func TestVideoListFilters(t *testing.T) {
	router, _ := newTestServer(t)
	resp := doJSONRequest(t, router, http.MethodGet, "/api/videos?paid=paid&tag=養生", nil, nil)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		Videos []struct {
			ID string `json:"id"`
		} `json:"videos"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if len(body.Videos) != 1 || body.Videos[0].ID != "v2" {
		t.Fatalf("unexpected filter result %+v", body.Videos)
	}
}

func TestNotificationDeepLink(t *testing.T) {
	router, _ := newTestServer(t)
	headers := loginAs(t, router, "student")

	resp := doJSONRequest(t, router, http.MethodPost, "/api/notifications/n2/read", nil, headers)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		Notification struct {
			Read bool `json:"read"`
		} `json:"notification"`
		Shell shell.State `json:"shell"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if !body.Notification.Read {
		t.Fatalf("notification should be marked read")
	}
	if body.Shell.ActiveTab != shell.TabForum || body.Shell.ViewingPostID != "p1" {
		t.Fatalf("expected deep link into the forum, got %+v", body.Shell)
	}
}

func newTestServer(t *testing.T) (*gin.Engine, *fakeAsker) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}

	now := time.Now()
	hub := events.NewHub()
	sessions := assistant.NewService(assistant.WithSeed(assistant.FixtureSessions), assistant.WithEvents(hub))
	asker := &fakeAsker{reply: "ok"}
	replies := worker.NewManager(sessions, asker, worker.Config{Timeout: 5 * time.Second, RatePerMinute: 6000, Burst: 100}, nil)
	t.Cleanup(replies.Wait)

	handler, err := NewHandler(Deps{
		Auth:     auth.NewService(db, nil, time.Hour, nil),
		Sessions: sessions,
		Replies:  replies,
		Forum:    community.NewForum(community.FixturePosts(now), community.WithEvents(hub)),
		Videos:   community.NewVideos(community.FixtureVideos(now), community.WithEvents(hub)),
		Users:    profile.NewDirectory(profile.FixtureUsers(now), hub, nil),
		Shell:    shell.NewRegistry(hub),
		Hub:      hub,
	})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	router := gin.New()
	handler.RegisterRoutes(router)
	return router, asker
}

func loginAs(t *testing.T, router *gin.Engine, preset string) map[string]string {
	t.Helper()
	resp := doJSONRequest(t, router, http.MethodPost, "/api/login", map[string]string{"preset": preset}, nil)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		AuthToken string `json:"auth_token"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.AuthToken == "" {
		t.Fatalf("expected auth token from login")
	}
	return map[string]string{
		"Authorization": "Bearer " + body.AuthToken,
		"X-Client-Key":  resp.Header().Get("X-Client-Key"),
	}
}

func newClientKey(t *testing.T, router *gin.Engine) string {
	t.Helper()
	resp := doJSONRequest(t, router, http.MethodGet, "/api/shell", nil, nil)
	assertStatus(t, resp, http.StatusOK)
	key := resp.Header().Get("X-Client-Key")
	if key == "" {
		t.Fatalf("expected a minted client key")
	}
	return key
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	} else if method == http.MethodPost || method == http.MethodPatch {
		buf.WriteString("{}")
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func parseSSE(t *testing.T, payload string) []sseEvent {
	t.Helper()
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil
	}
	var out []sseEvent
	for _, chunk := range strings.Split(payload, "\n\n") {
		var evt sseEvent
		for _, line := range strings.Split(strings.TrimSpace(chunk), "\n") {
			switch {
			case strings.HasPrefix(line, "event:"):
				evt.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				evt.Data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
		out = append(out, evt)
	}
	return out
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, want %d, body: %s", rec.Code, want, rec.Body.String())
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
