package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/pawrest/pawrest/internal/model"
	"github.com/pawrest/pawrest/internal/signup"
	"github.com/pawrest/pawrest/internal/validation"
)

func furParentValues() url.Values {
	return url.Values{
		"firstName":       {"Ana"},
		"lastName":        {"Cruz"},
		"email":           {"ana@example.com"},
		"password":        {"Abcdef12"},
		"confirmPassword": {"Abcdef12"},
		"privacyPolicy":   {"true", "false"},
	}
}

func providerFields() map[string]string {
	return map[string]string{
		"firstName":           "Ben",
		"lastName":            "Reyes",
		"email":               "ben@example.com",
		"sex":                 "male",
		"businessName":        "Rainbow Bridge Care",
		"businessAddress":     "12 Mabini Street, Quezon City",
		"businessPhone":       "09171234567",
		"businessEmail":       "care@example.com",
		"businessDescription": "Gentle cremation and memorial services for cats, dogs and small companions.",
		"password":            "Abcdef12",
		"confirmPassword":     "Abcdef12",
		"privacyPolicy":       "true",
		"return_to":           "/signup",
	}
}

func pdfFile(name string) testFile {
	return testFile{name: name, contentType: "application/pdf", data: []byte("%PDF-1.4 test document")}
}

func signupState(t *testing.T, env *testEnv) string {
	t.Helper()
	dialog := findByID(env.home(), "signup-dialog")
	if dialog == nil {
		return ""
	}
	return attr(dialog, "data-state")
}

func TestFlowHandler_OpenSignup_ShowsRoleChoice(t *testing.T) {
	env := newTestEnv(t)

	if dialog := findByID(env.home(), "signup-dialog"); dialog != nil {
		t.Fatal("signup dialog should be closed on first visit")
	}

	resp := env.post("/flow/signup/open", nil)
	assertRedirect(t, resp, http.StatusSeeOther, "/")

	if env.cookie(flowCookieName) == "" {
		t.Error("flow_id cookie should be set")
	}
	if got := signupState(t, env); got != "choosingRole" {
		t.Errorf("signup state = %q, want choosingRole", got)
	}
}

func TestFlowHandler_SelectRole_InvalidRole(t *testing.T) {
	env := newTestEnv(t)
	env.post("/flow/signup/open", nil)

	for _, role := range []string{"", "dog", "admin"} {
		resp := env.post("/flow/signup/role", url.Values{"role": {role}})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("role %q: status = %d, want 400", role, resp.StatusCode)
		}
	}
	if got := signupState(t, env); got != "choosingRole" {
		t.Errorf("signup state = %q, want choosingRole", got)
	}
}

func TestFlowHandler_FurParentSignup_Success(t *testing.T) {
	env := newTestEnv(t)
	env.post("/flow/signup/open", nil)
	env.post("/flow/signup/role", url.Values{"role": {"furParent"}})

	doc := env.home()
	if findByID(doc, "fur-parent-form") == nil {
		t.Fatal("fur parent form should be rendered")
	}

	resp := env.post("/flow/signup/submit", furParentValues())
	assertRedirect(t, resp, http.StatusSeeOther, "/")

	if got := env.registrar.calls(); got != 1 {
		t.Fatalf("Register calls = %d, want 1", got)
	}
	form := env.registrar.form(0)
	if form.Role() != model.RoleFurParent {
		t.Errorf("role = %q, want furParent", form.Role())
	}
	if form.Credentials().Email != "ana@example.com" {
		t.Errorf("email = %q", form.Credentials().Email)
	}

	doc = env.home()
	if got := attr(findByID(doc, "signup-dialog"), "data-state"); got != "succeeded" {
		t.Errorf("signup state = %q, want succeeded", got)
	}
	if !strings.Contains(text(doc), "Please check your email to verify your account.") {
		t.Error("success notice should be rendered")
	}
}

func TestFlowHandler_FurParentSignup_PasswordMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.post("/flow/signup/open", nil)
	env.post("/flow/signup/role", url.Values{"role": {"furParent"}})

	form := furParentValues()
	form.Set("confirmPassword", "Abcdef13")
	env.post("/flow/signup/submit", form)

	if got := env.registrar.calls(); got != 0 {
		t.Errorf("Register calls = %d, want 0", got)
	}

	doc := env.home()
	if got := fieldError(doc, "confirmPassword"); got != "Passwords don't match" {
		t.Errorf("confirmPassword error = %q", got)
	}
	if got, _ := inputValue(doc, "firstName"); got != "Ana" {
		t.Errorf("firstName value = %q, want Ana", got)
	}
	if got, _ := inputValue(doc, "password"); got != "" {
		t.Errorf("password should not be echoed, got %q", got)
	}
}

func TestFlowHandler_FurParentSignup_PrivacyUnchecked(t *testing.T) {
	env := newTestEnv(t)
	env.post("/flow/signup/open", nil)
	env.post("/flow/signup/role", url.Values{"role": {"furParent"}})

	form := furParentValues()
	form["privacyPolicy"] = []string{"false"}
	env.post("/flow/signup/submit", form)

	if got := env.registrar.calls(); got != 0 {
		t.Errorf("Register calls = %d, want 0", got)
	}
	if got := fieldError(env.home(), "privacyPolicy"); got == "" {
		t.Error("privacyPolicy error should be rendered")
	}
}

func TestFlowHandler_Signup_ProviderError(t *testing.T) {
	env := newTestEnv(t)
	env.registrar.registerFn = func(ctx context.Context, form validation.SignupForm) (*signup.Result, error) {
		return nil, model.NewProviderError("User already registered")
	}
	env.post("/flow/signup/open", nil)
	env.post("/flow/signup/role", url.Values{"role": {"furParent"}})
	env.post("/flow/signup/submit", furParentValues())

	doc := env.home()
	if got := attr(findByID(doc, "signup-dialog"), "data-state"); got != "failed" {
		t.Errorf("signup state = %q, want failed", got)
	}
	if !strings.Contains(text(doc), "User already registered") {
		t.Error("provider message should be shown in the banner")
	}
	if got, _ := inputValue(doc, "email"); got != "ana@example.com" {
		t.Errorf("email value = %q, want it kept", got)
	}
}

func TestFlowHandler_ServiceProviderSignup_TwoSteps(t *testing.T) {
	env := newTestEnv(t)

	resp, doc := env.get("/signup")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /signup status = %d", resp.StatusCode)
	}
	if findByID(doc, "provider-details-form") == nil {
		t.Fatal("provider step 1 should be rendered")
	}

	resp = env.postMultipart("/flow/signup/next", providerFields(), nil)
	assertRedirect(t, resp, http.StatusSeeOther, "/signup")

	_, doc = env.get("/signup")
	if findByID(doc, "provider-documents-form") == nil {
		t.Fatal("provider step 2 should be rendered")
	}

	// 書類が1件欠けている場合は送信しない
	resp = env.postMultipart("/flow/signup/submit", map[string]string{"return_to": "/signup"}, map[string]testFile{
		"birCertificate": pdfFile("bir.pdf"),
		"businessPermit": pdfFile("permit.pdf"),
	})
	assertRedirect(t, resp, http.StatusSeeOther, "/signup")
	if got := env.registrar.calls(); got != 0 {
		t.Fatalf("Register calls = %d, want 0", got)
	}

	_, doc = env.get("/signup")
	if findByID(doc, "provider-documents-form") == nil {
		t.Fatal("should stay on the documents step")
	}
	if got := fieldError(doc, "governmentId"); got != "Please upload your Government ID" {
		t.Errorf("governmentId error = %q", got)
	}
	if !strings.Contains(text(doc), "Selected: bir.pdf") {
		t.Error("attached document should be listed")
	}

	env.postMultipart("/flow/signup/submit", map[string]string{"return_to": "/signup"}, map[string]testFile{
		"governmentId": {name: "id.png", contentType: "application/octet-stream", data: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")},
	})
	if got := env.registrar.calls(); got != 1 {
		t.Fatalf("Register calls = %d, want 1", got)
	}
	form, ok := env.registrar.form(0).(validation.ServiceProviderSignup)
	if !ok {
		t.Fatalf("form type = %T, want ServiceProviderSignup", env.registrar.form(0))
	}
	if form.Business.Name != "Rainbow Bridge Care" {
		t.Errorf("business name = %q", form.Business.Name)
	}
	if got := form.Documents[model.DocumentGovernmentID].ContentType; got != "image/png" {
		t.Errorf("sniffed content type = %q, want image/png", got)
	}
	if len(form.Documents) != 3 {
		t.Errorf("documents = %d, want 3", len(form.Documents))
	}
}

func TestFlowHandler_ServiceProviderSignup_Step1Errors(t *testing.T) {
	env := newTestEnv(t)
	env.get("/signup")

	fields := providerFields()
	fields["businessPhone"] = "123"
	env.postMultipart("/flow/signup/next", fields, nil)

	_, doc := env.get("/signup")
	if findByID(doc, "provider-details-form") == nil {
		t.Fatal("should stay on step 1")
	}
	if got := fieldError(doc, "businessPhone"); got == "" {
		t.Error("businessPhone error should be rendered")
	}
	if got, _ := inputValue(doc, "businessName"); got != "Rainbow Bridge Care" {
		t.Errorf("businessName value = %q, want it kept", got)
	}
}

func TestFlowHandler_ServiceProviderSignup_BackKeepsValues(t *testing.T) {
	env := newTestEnv(t)
	env.get("/signup")
	env.postMultipart("/flow/signup/next", providerFields(), nil)

	resp := env.postMultipart("/flow/signup/back", map[string]string{"return_to": "/signup"}, map[string]testFile{
		"birCertificate": pdfFile("bir.pdf"),
	})
	assertRedirect(t, resp, http.StatusSeeOther, "/signup")

	_, doc := env.get("/signup")
	if findByID(doc, "provider-details-form") == nil {
		t.Fatal("should be back on step 1")
	}
	if got, _ := inputValue(doc, "email"); got != "ben@example.com" {
		t.Errorf("email value = %q, want it kept", got)
	}

	env.postMultipart("/flow/signup/next", map[string]string{"return_to": "/signup"}, nil)
	_, doc = env.get("/signup")
	if !strings.Contains(text(doc), "Selected: bir.pdf") {
		t.Error("document chosen before going back should be kept")
	}
}

func TestFlowHandler_ReturnTo_OnlySignupAllowed(t *testing.T) {
	env := newTestEnv(t)
	env.post("/flow/signup/open", nil)

	resp := env.post("/flow/signup/role", url.Values{"role": {"furParent"}, "return_to": {"https://evil.example"}})
	assertRedirect(t, resp, http.StatusSeeOther, "/")
}

func TestFlowHandler_BackToRoles_ClearsValues(t *testing.T) {
	env := newTestEnv(t)
	env.post("/flow/signup/open", nil)
	env.post("/flow/signup/role", url.Values{"role": {"furParent"}})
	form := furParentValues()
	form.Set("password", "short")
	env.post("/flow/signup/submit", form)

	env.post("/flow/signup/roles", nil)
	if got := signupState(t, env); got != "choosingRole" {
		t.Fatalf("signup state = %q, want choosingRole", got)
	}

	env.post("/flow/signup/role", url.Values{"role": {"furParent"}})
	if got, _ := inputValue(env.home(), "firstName"); got != "" {
		t.Errorf("firstName value = %q, want empty", got)
	}
}

func TestFlowHandler_DialogsAreExclusive(t *testing.T) {
	env := newTestEnv(t)
	env.post("/flow/signup/open", nil)
	env.post("/flow/login/open", nil)

	doc := env.home()
	if findByID(doc, "signup-dialog") != nil {
		t.Error("signup dialog should be closed after opening login")
	}
	if findByID(doc, "login-form") == nil {
		t.Fatal("login form should be rendered")
	}

	env.post("/flow/switch/signup", nil)
	doc = env.home()
	if findByID(doc, "login-dialog") != nil {
		t.Error("login dialog should be closed after switching")
	}
	if got := attr(findByID(doc, "signup-dialog"), "data-state"); got != "choosingRole" {
		t.Errorf("signup state = %q, want choosingRole", got)
	}

	env.post("/flow/close", nil)
	doc = env.home()
	if findByID(doc, "signup-dialog") != nil || findByID(doc, "login-dialog") != nil {
		t.Error("both dialogs should be closed")
	}
}

func TestFlowHandler_Login_Success(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		lookup   model.Role
		wantPath string
	}{
		{name: "admin", role: "admin", wantPath: "/dashboard/admin"},
		{name: "fur parent", role: "furParent", wantPath: "/dashboard/fur-parent"},
		{name: "provider from businesses", role: "", lookup: model.RoleServiceProvider, wantPath: "/dashboard/service-provider"},
		{name: "default", role: "", wantPath: "/dashboard/fur-parent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.auth.signInFn = func(ctx context.Context, email, password string) (*model.Session, *model.Account, error) {
				return &model.Session{ID: "sess-1", AccountID: "acc-1", AccessToken: "tok"},
					&model.Account{ID: "acc-1", Email: email, Metadata: model.AccountMetadata{Role: tt.role}}, nil
			}
			env.auth.lookupRoleFn = func(ctx context.Context, accountID, accessToken string) (model.Role, bool, error) {
				return tt.lookup, tt.lookup != "", nil
			}

			env.post("/flow/login/open", nil)
			resp := env.post("/flow/login/submit", url.Values{"email": {"a@b.co"}, "password": {"Secret123"}})
			assertRedirect(t, resp, http.StatusSeeOther, tt.wantPath)

			if got := env.cookie("session_id"); got != "sess-1" {
				t.Errorf("session_id cookie = %q, want sess-1", got)
			}
			if findByID(env.home(), "login-dialog") != nil {
				t.Error("login dialog should be closed after login")
			}
		})
	}
}

func TestFlowHandler_Login_InvalidEmail(t *testing.T) {
	env := newTestEnv(t)
	env.post("/flow/login/open", nil)

	resp := env.post("/flow/login/submit", url.Values{"email": {"not-an-email"}, "password": {"Secret123"}})
	assertRedirect(t, resp, http.StatusSeeOther, "/")

	if got := env.auth.signIns(); got != 0 {
		t.Errorf("SignIn calls = %d, want 0", got)
	}
	doc := env.home()
	if got := fieldError(doc, "email"); got != "Please enter a valid email address" {
		t.Errorf("email error = %q", got)
	}
	if env.cookie("session_id") != "" {
		t.Error("session cookie should not be set")
	}
}

func TestFlowHandler_Login_ProviderError(t *testing.T) {
	env := newTestEnv(t)
	env.auth.signInFn = func(ctx context.Context, email, password string) (*model.Session, *model.Account, error) {
		return nil, nil, model.NewProviderError("Invalid login credentials")
	}
	env.post("/flow/login/open", nil)
	env.post("/flow/login/submit", url.Values{"email": {"a@b.co"}, "password": {"Secret123"}})

	doc := env.home()
	if got := attr(findByID(doc, "login-dialog"), "data-state"); got != "failed" {
		t.Errorf("login state = %q, want failed", got)
	}
	if !strings.Contains(text(doc), "Invalid login credentials") {
		t.Error("provider message should be shown")
	}
	if got, _ := inputValue(doc, "email"); got != "a@b.co" {
		t.Errorf("email value = %q, want it kept", got)
	}
}

func TestFlowHandler_PasswordReset(t *testing.T) {
	env := newTestEnv(t)
	env.post("/flow/login/open", nil)
	env.post("/flow/login/forgot", url.Values{"email": {"a@b.co"}})

	doc := env.home()
	if findByID(doc, "reset-form") == nil {
		t.Fatal("reset form should be rendered")
	}
	if got, _ := inputValue(doc, "email"); got != "a@b.co" {
		t.Errorf("reset email = %q, want carried over", got)
	}

	// 空のメールアドレスはプロバイダーを呼ばない
	env.post("/flow/login/reset", url.Values{"email": {""}})
	if got := len(env.auth.resets()); got != 0 {
		t.Fatalf("ResetPassword calls = %d, want 0", got)
	}
	if got := fieldError(env.home(), "email"); got != "Please enter your email address" {
		t.Errorf("email error = %q", got)
	}

	env.post("/flow/login/reset", url.Values{"email": {"a@b.co"}})
	resets := env.auth.resets()
	if len(resets) != 1 {
		t.Fatalf("ResetPassword calls = %d, want 1", len(resets))
	}
	if resets[0] != "a@b.co" {
		t.Errorf("reset email = %q", resets[0])
	}
	doc = env.home()
	if got := text(findByID(doc, "reset-notice")); got != "Password reset instructions have been sent to your email." {
		t.Errorf("reset notice = %q", got)
	}

	env.post("/flow/login/cancel-reset", nil)
	if findByID(env.home(), "login-form") == nil {
		t.Error("cancel should return to the login form")
	}
}

func TestFlowHandler_PasswordReset_ProviderError(t *testing.T) {
	env := newTestEnv(t)
	env.auth.resetFn = func(ctx context.Context, email string) error {
		return errors.New("connection refused")
	}
	env.post("/flow/login/open", nil)
	env.post("/flow/login/forgot", nil)
	env.post("/flow/login/reset", url.Values{"email": {"a@b.co"}})

	doc := env.home()
	notice := findByID(doc, "reset-notice")
	if notice == nil {
		t.Fatal("reset notice should be rendered")
	}
	if !strings.Contains(attr(notice, "class"), "error") {
		t.Error("failed reset notice should be marked as error")
	}
	if findByID(doc, "reset-form") == nil {
		t.Error("dialog should stay on the reset form")
	}
}

func TestFlowHandler_RequiresCSRFToken(t *testing.T) {
	env := newTestEnv(t)
	env.home()

	resp, err := env.client.PostForm(env.server.URL+"/flow/signup/open", url.Values{})
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
	if findByID(env.home(), "signup-dialog") != nil {
		t.Error("rejected request should not open the dialog")
	}
}

func TestFlowHandler_RateLimit(t *testing.T) {
	env := newTestEnv(t, withRateLimit(2))
	env.post("/flow/login/open", nil)

	form := url.Values{"email": {"not-an-email"}, "password": {"x"}}
	for i := 0; i < 2; i++ {
		if resp := env.post("/flow/login/submit", form); resp.StatusCode != http.StatusSeeOther {
			t.Fatalf("request %d: status = %d, want 303", i, resp.StatusCode)
		}
	}
	if resp := env.post("/flow/login/submit", form); resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}

	// レート制限は送信系のみ
	if resp := env.post("/flow/login/open", nil); resp.StatusCode != http.StatusSeeOther {
		t.Errorf("open status = %d, want 303", resp.StatusCode)
	}
}
