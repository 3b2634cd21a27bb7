package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"chapterquiz/internal/ratelimit"
	"chapterquiz/pkg/ai"
	"chapterquiz/pkg/auth"
	"chapterquiz/pkg/store"
	"chapterquiz/services/studio/internal/app"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubGenerator struct {
	reply string
	err   error
	calls int
}

func (g *stubGenerator) Generate(context.Context, string, float32) (string, error) {
	g.calls++
	return g.reply, g.err
}

type testEnv struct {
	handler http.Handler
	gen     *stubGenerator
}

func newTestEnv(t *testing.T, gen *stubGenerator, cfg Config) *testEnv {
	t.Helper()
	sessions, err := store.NewJWTSessionStore(testSecret, time.Hour, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	appCfg := app.Config{
		Store:    store.NewMemoryStore(),
		Sessions: sessions,
		Hasher:   auth.NewBcryptHasher(4),
	}
	if gen != nil {
		appCfg.Generator = gen
	}
	a, err := app.New(appCfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg.App = a
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testEnv{handler: srv.Router(), gen: gen}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) signUp(t *testing.T, email string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": email, "password": "pw", "confirmPassword": "pw",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, rec, &resp)
	return resp.Token
}

func (e *testEnv) paste(t *testing.T, token, label, content string) int64 {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/chapters", token, map[string]string{
		"title": "Calculus", "chapterLabel": label, "content": content,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create chapter status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp chapterCreatedResponse
	decode(t, rec, &resp)
	return resp.Chapter.ID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) errorResponse {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, status, rec.Body.String())
	}
	var resp errorResponse
	decode(t, rec, &resp)
	if resp.Code != code {
		t.Fatalf("code = %q, want %q", resp.Code, code)
	}
	if resp.RequestID == "" {
		t.Fatalf("error body missing request id")
	}
	return resp
}

func chapterPath(id int64, suffix string) string {
	return "/api/chapters/" + strconv.FormatInt(id, 10) + suffix
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	decode(t, rec, &body)
	if body["status"] != "ok" || body["generation"] != false {
		t.Fatalf("health body = %v", body)
	}
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	token := env.signUp(t, "alice@example.com")

	rec := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "alice@example.com", "password": "x", "confirmPassword": "x",
	})
	resp := expectError(t, rec, http.StatusConflict, "already_registered")
	if resp.Error != "Email already registered." {
		t.Fatalf("message = %q", resp.Error)
	}

	rec = env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "bob@example.com", "password": "a", "confirmPassword": "b",
	})
	expectError(t, rec, http.StatusBadRequest, "validation_error")

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "nope"})
	resp = expectError(t, rec, http.StatusUnauthorized, "invalid_credentials")
	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "nobody@example.com", "password": "pw"})
	if other := expectError(t, rec, http.StatusUnauthorized, "invalid_credentials"); other.Error != resp.Error {
		t.Fatalf("unknown email and wrong password must look the same: %q vs %q", other.Error, resp.Error)
	}

	rec = env.do(t, http.MethodGet, "/api/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "$2a$") || strings.Contains(rec.Body.String(), "credential") {
		t.Fatalf("credential hash leaked: %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", rec.Code)
	}
	expectError(t, env.do(t, http.MethodGet, "/api/me", token, nil), http.StatusUnauthorized, "unauthorized")
	expectError(t, env.do(t, http.MethodGet, "/api/me", "", nil), http.StatusUnauthorized, "unauthorized")
}

func TestLoginRateLimitedWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := ratelimit.NewRedisFixedWindow(client, "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	env := newTestEnv(t, nil, Config{LoginLimiter: limiter})

	body := map[string]string{"email": "alice@example.com", "password": "pw"}
	for i := 0; i < 2; i++ {
		expectError(t, env.do(t, http.MethodPost, "/api/auth/login", "", body), http.StatusUnauthorized, "invalid_credentials")
	}
	rec := env.do(t, http.MethodPost, "/api/auth/login", "", body)
	expectError(t, rec, http.StatusTooManyRequests, "rate_limited")
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || retry < 1 || retry > 60 {
		t.Fatalf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
}

func TestChaptersArePrivateAndOrdered(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	alice := env.signUp(t, "alice@example.com")
	bob := env.signUp(t, "bob@example.com")

	content := "Limits describe behaviour near a point.\n"
	first := env.paste(t, alice, "Chapter 1", content)
	second := env.paste(t, alice, "Chapter 2", "Derivatives.")

	rec := env.do(t, http.MethodGet, chapterPath(first, ""), alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got struct {
		Content string `json:"content"`
	}
	decode(t, rec, &got)
	if got.Content != content {
		t.Fatalf("content = %q, want %q", got.Content, content)
	}

	expectError(t, env.do(t, http.MethodGet, chapterPath(first, ""), bob, nil), http.StatusNotFound, "not_found")
	expectError(t, env.do(t, http.MethodGet, chapterPath(999, ""), alice, nil), http.StatusNotFound, "not_found")
	expectError(t, env.do(t, http.MethodGet, "/api/chapters/abc", alice, nil), http.StatusNotFound, "not_found")

	rec = env.do(t, http.MethodGet, "/api/chapters", alice, nil)
	var list struct {
		Items []map[string]any `json:"items"`
		Count int              `json:"count"`
	}
	decode(t, rec, &list)
	if list.Count != 2 {
		t.Fatalf("count = %d, want 2", list.Count)
	}
	if int64(list.Items[0]["id"].(float64)) != second || int64(list.Items[1]["id"].(float64)) != first {
		t.Fatalf("list not newest first: %v", list.Items)
	}
	if _, ok := list.Items[0]["content"]; ok {
		t.Fatalf("list must not carry content")
	}

	rec = env.do(t, http.MethodGet, "/api/chapters", bob, nil)
	decode(t, rec, &list)
	if list.Count != 0 {
		t.Fatalf("bob sees %d chapters", list.Count)
	}

	expectError(t, env.do(t, http.MethodPost, "/api/chapters", alice, map[string]string{"content": "  "}), http.StatusBadRequest, "validation_error")
	expectError(t, env.do(t, http.MethodPost, "/api/chapters", alice, map[string]string{}), http.StatusBadRequest, "validation_error")
}

func multipartUpload(t *testing.T, token, filename, contentType string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if filename != "" {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
		h["Content-Type"] = []string{contentType}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write(data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/chapters", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestChapterListingFallbacks(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	token := env.signUp(t, "alice@example.com")

	rec := env.do(t, http.MethodPost, "/api/chapters", token, map[string]string{
		"chapterLabel": "Chapter 4", "content": "Untitled notes.",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created chapterCreatedResponse
	decode(t, rec, &created)
	if created.Chapter.Title != "" || created.Chapter.DisplayTitle != "Untitled" {
		t.Fatalf("created chapter = %+v", created.Chapter)
	}
	env.paste(t, token, "Chapter 7", "Integrals.")

	rec = env.do(t, http.MethodGet, "/api/chapters", token, nil)
	var list struct {
		Items []chapterItem `json:"items"`
	}
	decode(t, rec, &list)
	if len(list.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(list.Items))
	}
	for _, item := range list.Items {
		switch item.ChapterLabel {
		case "Chapter 4":
			if item.DisplayTitle != "Untitled" || item.DisplayISBN != "N/A" || item.DisplayName != "Untitled – Chapter 4" {
				t.Fatalf("untitled item = %+v", item)
			}
		case "Chapter 7":
			if item.DisplayTitle != "Calculus" || item.DisplayName != "Calculus – Chapter 7" {
				t.Fatalf("titled item = %+v", item)
			}
		default:
			t.Fatalf("unexpected item %+v", item)
		}
	}

	rec = env.do(t, http.MethodGet, chapterPath(created.Chapter.ID, ""), token, nil)
	var detail struct {
		Title        string `json:"title"`
		DisplayTitle string `json:"displayTitle"`
		DisplayISBN  string `json:"displayIsbn"`
	}
	decode(t, rec, &detail)
	if detail.Title != "" || detail.DisplayTitle != "Untitled" || detail.DisplayISBN != "N/A" {
		t.Fatalf("detail = %+v", detail)
	}
}

func TestUploadChapter(t *testing.T) {
	env := newTestEnv(t, nil, Config{MaxUploadBytes: 1 << 10})
	token := env.signUp(t, "alice@example.com")

	req := multipartUpload(t, token, "notes.txt", "text/plain", []byte("Mitochondria make ATP."), map[string]string{
		"title": "Biology", "chapterLabel": "Chapter 5", "content": "ignored when a file is attached",
	})
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created chapterCreatedResponse
	decode(t, rec, &created)
	if created.Kind != "text" || created.Chapter.ChapterLabel != "Chapter 5" || created.EmptyPages == nil {
		t.Fatalf("created = %+v", created)
	}
	rec = env.do(t, http.MethodGet, chapterPath(created.Chapter.ID, ""), token, nil)
	if !strings.Contains(rec.Body.String(), "Mitochondria make ATP.") {
		t.Fatalf("file content not stored: %s", rec.Body.String())
	}

	req = multipartUpload(t, token, "", "", nil, map[string]string{"content": "Pasted through the form."})
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("form paste status = %d, body = %s", rec.Code, rec.Body.String())
	}

	req = multipartUpload(t, token, "slides.pptx", "application/vnd.ms-powerpoint", []byte("PK"), nil)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	expectError(t, rec, http.StatusUnsupportedMediaType, "unsupported_format")

	req = multipartUpload(t, token, "broken.pdf", "application/pdf", []byte("not a pdf"), nil)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	expectError(t, rec, http.StatusUnprocessableEntity, "decode_error")

	req = multipartUpload(t, token, "big.txt", "text/plain", bytes.Repeat([]byte("a"), 4<<10), nil)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	expectError(t, rec, http.StatusRequestEntityTooLarge, "payload_too_large")

	req = multipartUpload(t, token, "", "", nil, nil)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	expectError(t, rec, http.StatusBadRequest, "validation_error")
}

func TestQuizFormats(t *testing.T) {
	gen := &stubGenerator{reply: "## True/False\nQ1. 1 < 2\nAnswer: True"}
	env := newTestEnv(t, gen, Config{})
	token := env.signUp(t, "alice@example.com")
	id := env.paste(t, token, "Chapter 1", "Numbers.")

	rec := env.do(t, http.MethodPost, chapterPath(id, "/quiz"), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("quiz status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp generationResponse
	decode(t, rec, &resp)
	if resp.Text != gen.reply || resp.Truncated || resp.SourceChars != len("Numbers.") {
		t.Fatalf("quiz response = %+v", resp)
	}
	if !strings.Contains(resp.HTML, "<h2>True/False</h2>") || !strings.HasPrefix(resp.PrintLink, "data:text/html;base64,") {
		t.Fatalf("rendered forms missing: %+v", resp)
	}

	rec = env.do(t, http.MethodPost, chapterPath(id, "/quiz?format=text"), token, map[string]any{"questionType": "TF", "countTf": 3})
	if rec.Code != http.StatusOK || rec.Body.String() != gen.reply {
		t.Fatalf("text download = %d %q", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename=quiz.txt` {
		t.Fatalf("Content-Disposition = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Fatalf("Content-Type = %q", got)
	}

	rec = env.do(t, http.MethodPost, chapterPath(id, "/quiz?format=print"), token, nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("print = %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "<title>Quiz – Chapter 1</title>") || !strings.Contains(rec.Body.String(), "1 &lt; 2<br>Answer") {
		t.Fatalf("printable body = %s", rec.Body.String())
	}
	if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "style-src 'unsafe-inline'") {
		t.Fatalf("printable CSP = %q", csp)
	}

	expectError(t, env.do(t, http.MethodPost, chapterPath(id, "/quiz?format=pdf"), token, nil), http.StatusBadRequest, "validation_error")
	expectError(t, env.do(t, http.MethodPost, chapterPath(id, "/quiz"), token, map[string]any{"countMcq": 0, "countSubjective": 0, "countTf": 0}), http.StatusBadRequest, "validation_error")
	expectError(t, env.do(t, http.MethodPost, chapterPath(id, "/quiz"), token, map[string]any{"difficulty": "Extreme"}), http.StatusBadRequest, "validation_error")
	if gen.calls != 3 {
		t.Fatalf("generator calls = %d, want 3", gen.calls)
	}
}

func TestCheatSheetDownloadAndIsolation(t *testing.T) {
	gen := &stubGenerator{reply: "Overview: ..."}
	env := newTestEnv(t, gen, Config{})
	alice := env.signUp(t, "alice@example.com")
	bob := env.signUp(t, "bob@example.com")
	id := env.paste(t, alice, "Chapter 2", "Cells.")

	rec := env.do(t, http.MethodPost, chapterPath(id, "/cheat-sheet?format=text"), alice, map[string]string{"level": "High School"})
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Disposition") != `attachment; filename=cheat_sheet.txt` {
		t.Fatalf("cheat sheet download = %d %q", rec.Code, rec.Header().Get("Content-Disposition"))
	}

	expectError(t, env.do(t, http.MethodPost, chapterPath(id, "/cheat-sheet"), bob, nil), http.StatusNotFound, "not_found")
	expectError(t, env.do(t, http.MethodPost, chapterPath(id, "/cheat-sheet"), alice, map[string]string{"level": "Kindergarten"}), http.StatusBadRequest, "validation_error")
	if gen.calls != 1 {
		t.Fatalf("generator calls = %d, want 1", gen.calls)
	}
}

func TestGenerationUnavailableAndFailed(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	token := env.signUp(t, "alice@example.com")
	id := env.paste(t, token, "Chapter 1", "Text.")
	expectError(t, env.do(t, http.MethodPost, chapterPath(id, "/quiz"), token, nil), http.StatusServiceUnavailable, "generation_unavailable")

	gen := &stubGenerator{err: &ai.GenerationError{Provider: ai.ProviderOpenAI, Attempts: 3, Err: errors.New("upstream 500 with secret detail")}}
	env = newTestEnv(t, gen, Config{})
	token = env.signUp(t, "alice@example.com")
	id = env.paste(t, token, "Chapter 1", "Text.")
	rec := env.do(t, http.MethodPost, chapterPath(id, "/cheat-sheet"), token, nil)
	resp := expectError(t, rec, http.StatusBadGateway, "generation_failed")
	if strings.Contains(resp.Error, "secret detail") {
		t.Fatalf("provider error leaked: %q", resp.Error)
	}
}
