package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/pawrest/pawrest/internal/flow"
	"github.com/pawrest/pawrest/internal/middleware"
	"github.com/pawrest/pawrest/internal/model"
	"github.com/pawrest/pawrest/internal/signup"
	"github.com/pawrest/pawrest/internal/site"
	"github.com/pawrest/pawrest/internal/validation"
)

// --- モック定義 ---

// mockAuth は認証サービスのモック。ハンドラーとフローの両方のインターフェースを実装する。
type mockAuth struct {
	mu sync.Mutex

	signInFn         func(ctx context.Context, email, password string) (*model.Session, *model.Account, error)
	lookupRoleFn     func(ctx context.Context, accountID, accessToken string) (model.Role, bool, error)
	resetFn          func(ctx context.Context, email string) error
	userForSessionFn func(ctx context.Context, session *model.Session) (*model.Account, error)
	signOutFn        func(ctx context.Context, sessionID string) error

	signInCalls  int
	resetEmails  []string
	signOutCalls []string
}

func (m *mockAuth) SignIn(ctx context.Context, email, password string) (*model.Session, *model.Account, error) {
	m.mu.Lock()
	m.signInCalls++
	m.mu.Unlock()
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return &model.Session{ID: "sess-new", AccountID: "acc-1", AccessToken: "tok"},
		&model.Account{ID: "acc-1", Email: email, Metadata: model.AccountMetadata{Role: "furParent"}}, nil
}

func (m *mockAuth) LookupRole(ctx context.Context, accountID, accessToken string) (model.Role, bool, error) {
	if m.lookupRoleFn != nil {
		return m.lookupRoleFn(ctx, accountID, accessToken)
	}
	return "", false, nil
}

func (m *mockAuth) signIns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signInCalls
}

func (m *mockAuth) resets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.resetEmails...)
}

func (m *mockAuth) signOuts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.signOutCalls...)
}

func (m *mockAuth) ResetPassword(ctx context.Context, email string) error {
	m.mu.Lock()
	m.resetEmails = append(m.resetEmails, email)
	m.mu.Unlock()
	if m.resetFn != nil {
		return m.resetFn(ctx, email)
	}
	return nil
}

func (m *mockAuth) UserForSession(ctx context.Context, session *model.Session) (*model.Account, error) {
	if m.userForSessionFn != nil {
		return m.userForSessionFn(ctx, session)
	}
	return nil, nil
}

func (m *mockAuth) SignOut(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	m.signOutCalls = append(m.signOutCalls, sessionID)
	m.mu.Unlock()
	if m.signOutFn != nil {
		return m.signOutFn(ctx, sessionID)
	}
	return nil
}

type mockRegistrar struct {
	mu         sync.Mutex
	registerFn func(ctx context.Context, form validation.SignupForm) (*signup.Result, error)
	forms      []validation.SignupForm
}

func (m *mockRegistrar) Register(ctx context.Context, form validation.SignupForm) (*signup.Result, error) {
	m.mu.Lock()
	m.forms = append(m.forms, form)
	m.mu.Unlock()
	if m.registerFn != nil {
		return m.registerFn(ctx, form)
	}
	return &signup.Result{Account: &model.Account{ID: "acc-1"}, VerificationRequired: true}, nil
}

func (m *mockRegistrar) form(i int) validation.SignupForm {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forms[i]
}

func (m *mockRegistrar) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.forms)
}

// mockSessionLoader はCookieの値からセッションを引くモック。
type mockSessionLoader struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func (m *mockSessionLoader) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID], nil
}

type mockRegistrations struct {
	countFn func(ctx context.Context, status model.RegistrationStatus) (int, error)
	listFn  func(ctx context.Context, status model.RegistrationStatus, limit int) ([]*model.RegistrationAttempt, error)
}

func (m *mockRegistrations) CountByStatus(ctx context.Context, status model.RegistrationStatus) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, status)
	}
	return 0, nil
}

func (m *mockRegistrations) ListByStatus(ctx context.Context, status model.RegistrationStatus, limit int) ([]*model.RegistrationAttempt, error) {
	if m.listFn != nil {
		return m.listFn(ctx, status, limit)
	}
	return nil, nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// --- テストサーバー ---

type testEnv struct {
	t         *testing.T
	server    *httptest.Server
	client    *http.Client
	auth      *mockAuth
	registrar *mockRegistrar
	sessions  *mockSessionLoader
	store     *flow.Store
}

type envOption func(*RouterDeps)

func withRateLimit(perMinute int) envOption {
	return func(d *RouterDeps) {
		d.RateLimiter.Stop()
		d.RateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(perMinute))
	}
}

func newTestRenderer(t *testing.T) *site.Renderer {
	t.Helper()
	renderer, err := site.NewRenderer()
	if err != nil {
		t.Fatalf("site.NewRenderer() error = %v", err)
	}
	return renderer
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	v, err := validation.New(validation.Options{})
	if err != nil {
		t.Fatalf("validation.New() error = %v", err)
	}

	env := &testEnv{
		t:         t,
		auth:      &mockAuth{},
		registrar: &mockRegistrar{},
		sessions:  &mockSessionLoader{sessions: map[string]*model.Session{}},
	}
	env.store = flow.NewStore(flow.DefaultStoreConfig(), flow.Deps{
		Validator: v,
		Registrar: env.registrar,
		Auth:      env.auth,
	})
	t.Cleanup(env.store.Stop)

	deps := &RouterDeps{
		SessionLoader: env.sessions,
		RateLimiter:   middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig()),
		CSRF:          middleware.CSRFConfig{MaxBodyBytes: 3*model.DefaultMaxUploadSize + 1<<20},
		HealthChecker: &mockHealthChecker{},
		AuthService:   env.auth,
		AuthConfig: AuthHandlerConfig{
			BaseURL:       "http://localhost:8080",
			SessionMaxAge: 604800,
		},
		FlowStore:     env.store,
		Registrations: &mockRegistrations{},
		Renderer:      newTestRenderer(t),
	}
	for _, opt := range opts {
		opt(deps)
	}
	t.Cleanup(deps.RateLimiter.Stop)

	env.server = httptest.NewServer(NewRouter(deps))
	t.Cleanup(env.server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New() error = %v", err)
	}
	env.client = &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
		// リダイレクト先を検証するため自動で追わない
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return env
}

// cookie はクライアントが保持しているCookieの値を返す。
func (e *testEnv) cookie(name string) string {
	u, _ := url.Parse(e.server.URL)
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// setSession はログイン済みのセッションCookieを設定する。
func (e *testEnv) setSession(session *model.Session) {
	e.sessions.mu.Lock()
	e.sessions.sessions[session.ID] = session
	e.sessions.mu.Unlock()
	u, _ := url.Parse(e.server.URL)
	e.client.Jar.SetCookies(u, []*http.Cookie{{Name: middleware.SessionCookieName, Value: session.ID, Path: "/"}})
}

// get はGETリクエストを送り、レスポンスとHTMLを返す。
func (e *testEnv) get(path string) (*http.Response, *html.Node) {
	e.t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	if err != nil {
		e.t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		e.t.Fatalf("read body: %v", err)
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		e.t.Fatalf("parse html: %v", err)
	}
	return resp, doc
}

// home はトップページを取得する。CSRF Cookieの発行も兼ねる。
func (e *testEnv) home() *html.Node {
	e.t.Helper()
	resp, doc := e.get("/")
	if resp.StatusCode != http.StatusOK {
		e.t.Fatalf("GET / status = %d, want 200", resp.StatusCode)
	}
	return doc
}

// post はCSRFトークン付きでフォームを送信する。
func (e *testEnv) post(path string, form url.Values) *http.Response {
	e.t.Helper()
	if e.cookie("csrf_token") == "" {
		e.home()
	}
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", e.cookie("csrf_token"))

	resp, err := e.client.PostForm(e.server.URL+path, form)
	if err != nil {
		e.t.Fatalf("POST %s: %v", path, err)
	}
	resp.Body.Close()
	return resp
}

// testFile はmultipartで送るファイル。
type testFile struct {
	name        string
	contentType string
	data        []byte
}

// postMultipart はCSRFトークン付きでmultipartフォームを送信する。
func (e *testEnv) postMultipart(path string, fields map[string]string, files map[string]testFile) *http.Response {
	e.t.Helper()
	if e.cookie("csrf_token") == "" {
		e.home()
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("csrf_token", e.cookie("csrf_token"))
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	for field, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			e.t.Fatalf("create part: %v", err)
		}
		part.Write(f.data)
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, &buf)
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		e.t.Fatalf("POST %s: %v", path, err)
	}
	resp.Body.Close()
	return resp
}

// assertRedirect はステータスとLocationを検証する。
func assertRedirect(t *testing.T, resp *http.Response, status int, location string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Errorf("status = %d, want %d", resp.StatusCode, status)
	}
	if got := resp.Header.Get("Location"); got != location {
		t.Errorf("Location = %q, want %q", got, location)
	}
}

// --- HTMLヘルパー ---

// findByID はid属性が一致する要素を返す。
func findByID(n *html.Node, id string) *html.Node {
	return find(n, func(n *html.Node) bool { return attr(n, "id") == id })
}

// find は条件に一致する最初の要素を深さ優先で返す。
func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

// attr は要素の属性値を返す。
func attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// text は要素内のテキストを連結して返す。
func text(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// inputValue はname属性が一致するinput要素のvalueを返す。
func inputValue(doc *html.Node, name string) (string, bool) {
	n := find(doc, func(n *html.Node) bool {
		return n.Data == "input" && attr(n, "name") == name && attr(n, "type") != "hidden"
	})
	if n == nil {
		return "", false
	}
	return attr(n, "value"), true
}

// fieldError はフィールドのエラーメッセージを返す。
func fieldError(doc *html.Node, field string) string {
	return text(findByID(doc, field+"-error"))
}
