package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"postbot/internal/model"
	"postbot/internal/storage"
)

type fakeJobs struct {
	mu           sync.Mutex
	registered   []int64
	unregistered []int64
}

func (f *fakeJobs) Register(p model.Post, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, p.ID)
}

func (f *fakeJobs) Unregister(postID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unregistered = append(f.unregistered, postID)
}

type testEnv struct {
	srv   *httptest.Server
	store *storage.Store
	jobs  *fakeJobs
	token string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "bot.db")}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	token, err := s.AddUser(context.Background(), 42, "alice")
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	jobs := &fakeJobs{}
	web := NewServer(Config{Addr: "127.0.0.1:0"}, s, jobs, zerolog.Nop())
	ts := httptest.NewServer(web.srv.Handler)
	t.Cleanup(ts.Close)
	return &testEnv{srv: ts, store: s, jobs: jobs, token: token}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	sep := "?"
	if bytes.ContainsRune([]byte(path), '?') {
		sep = "&"
	}
	req, err := http.NewRequest(method, e.srv.URL+path+sep+"token="+e.token, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

// doList is do for endpoints whose success body is a bare JSON array.
func (e *testEnv) doList(t *testing.T, method, path string, body any) (*http.Response, []any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	sep := "?"
	if bytes.ContainsRune([]byte(path), '?') {
		sep = "&"
	}
	req, err := http.NewRequest(method, e.srv.URL+path+sep+"token="+e.token, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	var out []any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (e *testEnv) seedPost(t *testing.T) int64 {
	t.Helper()
	id, err := e.store.CreatePost(context.Background(), model.Post{
		ChatID: -100, OwnerID: 42, Content: "hello",
		MediaType: model.MediaText, ScheduleType: model.ScheduleDaily,
		ScheduledTime: "09:00", IsActive: true,
	})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	return id
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	resp, err := http.Get(e.srv.URL + "/api/posts")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: %d", resp.StatusCode)
	}

	resp, err = http.Get(e.srv.URL + "/api/posts?token=bogus")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", resp.StatusCode)
	}
}

func TestBearerHeaderAccepted(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/api/posts", nil)
	req.Header.Set("Authorization", "Bearer "+e.token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bearer auth: %d", resp.StatusCode)
	}
}

func TestListAndGetPost(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	id := e.seedPost(t)

	resp, list := e.doList(t, http.MethodGet, "/api/posts", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d", resp.StatusCode)
	}
	if len(list) != 1 {
		t.Fatalf("list length: %v", list)
	}
	item := list[0].(map[string]any)
	if int64(item["post_id"].(float64)) != id {
		t.Fatalf("post_id: %v", item)
	}
	for _, key := range []string{"content", "is_active", "schedule_type", "scheduled_time", "scheduled_date"} {
		if _, ok := item[key]; !ok {
			t.Fatalf("list entry missing %q: %v", key, item)
		}
	}

	resp, body := e.do(t, http.MethodGet, fmt.Sprintf("/api/posts/%d", id), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: %d", resp.StatusCode)
	}
	post := body["post"].(map[string]any)
	if post["content"] != "hello" || post["schedule_type"] != "daily" {
		t.Fatalf("post body: %v", post)
	}
}

func TestForeignPostReads404(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	other, err := e.store.CreatePost(context.Background(), model.Post{
		ChatID: -1, OwnerID: 7, Content: "not yours",
		MediaType: model.MediaText, ScheduleType: model.ScheduleDaily,
		ScheduledTime: "09:00", IsActive: true,
	})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	resp, _ := e.do(t, http.MethodGet, fmt.Sprintf("/api/posts/%d", other), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign post: %d", resp.StatusCode)
	}
}

func TestUpdatePostSyncsJobs(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	id := e.seedPost(t)

	resp, _ := e.do(t, http.MethodPut, fmt.Sprintf("/api/posts/%d", id),
		map[string]any{"is_active": false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("disable: %d", resp.StatusCode)
	}
	if len(e.jobs.unregistered) != 1 || e.jobs.unregistered[0] != id {
		t.Fatalf("unregistered: %v", e.jobs.unregistered)
	}

	resp, _ = e.do(t, http.MethodPut, fmt.Sprintf("/api/posts/%d", id),
		map[string]any{"is_active": true, "content": "edited"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("enable: %d", resp.StatusCode)
	}
	if len(e.jobs.registered) != 1 || e.jobs.registered[0] != id {
		t.Fatalf("registered: %v", e.jobs.registered)
	}
	p, _ := e.store.Post(context.Background(), id)
	if p.Content != "edited" || !p.IsActive {
		t.Fatalf("patch not applied: %+v", p)
	}
}

func TestDeletePost(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	id := e.seedPost(t)

	resp, _ := e.do(t, http.MethodDelete, fmt.Sprintf("/api/posts/%d", id), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	if len(e.jobs.unregistered) != 1 {
		t.Fatalf("job not unregistered: %v", e.jobs.unregistered)
	}
	resp, _ = e.do(t, http.MethodGet, fmt.Sprintf("/api/posts/%d", id), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted post still readable: %d", resp.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.seedPost(t)
	e.store.BumpStats(context.Background(), 42, 1, 2, 3)

	resp, body := e.do(t, http.MethodGet, "/api/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: %d", resp.StatusCode)
	}
	if body["posts_sent"].(float64) != 2 || body["posts_failed"].(float64) != 3 {
		t.Fatalf("stats body: %v", body)
	}
	if body["active_posts"].(float64) != 1 {
		t.Fatalf("active_posts: %v", body["active_posts"])
	}
}

func TestImportRequiresChat(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	resp, _ := e.do(t, http.MethodPost, "/api/import", map[string]any{"posts": []any{}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("import without chats: %d", resp.StatusCode)
	}
}

func TestImportValidatesDrafts(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	err := e.store.UpsertChat(context.Background(), model.Chat{ID: -100, Title: "room", Type: "group", OwnerID: 42})
	if err != nil {
		t.Fatalf("UpsertChat: %v", err)
	}

	resp, body := e.do(t, http.MethodPost, "/api/import", map[string]any{
		"posts": []map[string]any{
			{"content": "good", "schedule_type": "daily", "scheduled_time": "10:00"},
			{"content": "bad", "schedule_type": "weekly", "scheduled_time": "10:00"},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("import: %d", resp.StatusCode)
	}
	if body["imported"].(float64) != 1 {
		t.Fatalf("imported: %v", body["imported"])
	}
	if n := len(body["post_ids"].([]any)); n != 1 {
		t.Fatalf("post_ids: %v", body["post_ids"])
	}
	if n := len(body["rejected"].([]any)); n != 1 {
		t.Fatalf("rejected: %v", body["rejected"])
	}
	if len(e.jobs.registered) != 1 {
		t.Fatalf("imported post not registered: %v", e.jobs.registered)
	}
}

func TestImportAcceptsBareArray(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	err := e.store.UpsertChat(context.Background(), model.Chat{ID: -100, Title: "room", Type: "group", OwnerID: 42})
	if err != nil {
		t.Fatalf("UpsertChat: %v", err)
	}

	resp, body := e.do(t, http.MethodPost, "/api/import", []map[string]any{
		{"content": "from export", "schedule_type": "daily", "scheduled_time": "08:30"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bare array import: %d", resp.StatusCode)
	}
	if body["imported"].(float64) != 1 {
		t.Fatalf("imported: %v", body["imported"])
	}
	if len(e.jobs.registered) != 1 {
		t.Fatalf("imported post not registered: %v", e.jobs.registered)
	}
}

// Export output must be directly re-importable.
func TestExportImportRoundTrip(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.seedPost(t)
	err := e.store.UpsertChat(context.Background(), model.Chat{ID: -100, Title: "room", Type: "group", OwnerID: 42})
	if err != nil {
		t.Fatalf("UpsertChat: %v", err)
	}

	resp, exported := e.doList(t, http.MethodGet, "/api/export", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export: %d", resp.StatusCode)
	}

	resp, body := e.do(t, http.MethodPost, "/api/import", exported)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("re-import: %d", resp.StatusCode)
	}
	if body["imported"].(float64) != 1 {
		t.Fatalf("imported: %v", body["imported"])
	}
}

func TestExport(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.seedPost(t)

	resp, list := e.doList(t, http.MethodGet, "/api/export", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export: %d", resp.StatusCode)
	}
	if len(list) != 1 {
		t.Fatalf("exported posts: %v", list)
	}
	if _, ok := list[0].(map[string]any)["post_id"]; !ok {
		t.Fatalf("export entry missing post_id: %v", list[0])
	}
}

func TestDuplicateEndpoint(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	id := e.seedPost(t)

	resp, body := e.do(t, http.MethodPost, fmt.Sprintf("/api/posts/%d/duplicate", id), nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("duplicate: %d", resp.StatusCode)
	}
	dup := int64(body["post"].(map[string]any)["post_id"].(float64))
	if dup == id {
		t.Fatalf("duplicate reused id")
	}
	if len(e.jobs.registered) != 1 || e.jobs.registered[0] != dup {
		t.Fatalf("duplicate not scheduled: %v", e.jobs.registered)
	}
}

func TestBulkDisableAndDelete(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	a := e.seedPost(t)
	b := e.seedPost(t)

	resp, body := e.do(t, http.MethodPost, "/api/posts/bulk", map[string]any{"action": "disable"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bulk disable: %d", resp.StatusCode)
	}
	if n := len(body["affected"].([]any)); n != 2 {
		t.Fatalf("affected: %v", body["affected"])
	}
	if len(e.jobs.unregistered) != 2 {
		t.Fatalf("jobs not unregistered: %v", e.jobs.unregistered)
	}

	resp, body = e.do(t, http.MethodPost, "/api/posts/bulk", map[string]any{"action": "delete"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bulk delete: %d", resp.StatusCode)
	}
	if n := len(body["affected"].([]any)); n != 2 {
		t.Fatalf("affected: %v", body["affected"])
	}
	for _, id := range []int64{a, b} {
		resp, _ := e.do(t, http.MethodGet, fmt.Sprintf("/api/posts/%d", id), nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("post %d survived bulk delete: %d", id, resp.StatusCode)
		}
	}
}

func TestBulkRejectsUnknownAction(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	resp, _ := e.do(t, http.MethodPost, "/api/posts/bulk", map[string]any{"action": "explode"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown action: %d", resp.StatusCode)
	}
}

func TestTemplateLifecycle(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	resp, body := e.do(t, http.MethodPost, "/api/templates", map[string]any{
		"name":            "promo",
		"content":         "weekly promo",
		"has_participate": true,
		"button_text":     "Join",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create template: %d", resp.StatusCode)
	}
	id := int64(body["id"].(float64))

	resp, body = e.do(t, http.MethodGet, "/api/templates", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list templates: %d", resp.StatusCode)
	}
	list := body["templates"].([]any)
	if len(list) != 1 || list[0].(map[string]any)["name"] != "promo" {
		t.Fatalf("templates: %v", list)
	}

	resp, _ = e.do(t, http.MethodDelete, fmt.Sprintf("/api/templates/%d", id), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete template: %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodDelete, fmt.Sprintf("/api/templates/%d", id), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted template still deletable: %d", resp.StatusCode)
	}
}

func TestImportWithTemplate(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	e.store.UpsertChat(ctx, model.Chat{ID: -100, Title: "room", Type: "group", OwnerID: 42})
	e.store.CreateTemplate(ctx, model.Template{
		OwnerID: 42, Name: "promo", Content: "templated body",
		MediaType: model.MediaText, HasParticipate: true, ButtonText: "Join",
	})

	resp, body := e.do(t, http.MethodPost, "/api/import", map[string]any{
		"posts": []map[string]any{
			{"template": "promo", "schedule_type": "daily", "scheduled_time": "12:00"},
			{"template": "missing", "schedule_type": "daily", "scheduled_time": "12:00"},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("import: %d", resp.StatusCode)
	}
	if body["imported"].(float64) != 1 {
		t.Fatalf("imported: %v", body["imported"])
	}
	if n := len(body["rejected"].([]any)); n != 1 {
		t.Fatalf("rejected: %v", body["rejected"])
	}
	ids := body["post_ids"].([]any)
	if len(ids) != 1 {
		t.Fatalf("post_ids: %v", ids)
	}
	id := int64(ids[0].(float64))
	p, err := e.store.Post(ctx, id)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if p.Content != "templated body" || !p.HasParticipate || p.TemplateName != "promo" {
		t.Fatalf("template not applied: %+v", p)
	}
}

func TestListChats(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.store.UpsertChat(context.Background(), model.Chat{ID: -100, Title: "room", Type: "group", OwnerID: 42})

	resp, body := e.do(t, http.MethodGet, "/api/chats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chats: %d", resp.StatusCode)
	}
	chats := body["chats"].([]any)
	if len(chats) != 1 || chats[0].(map[string]any)["title"] != "room" {
		t.Fatalf("chats body: %v", chats)
	}
}
