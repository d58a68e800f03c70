package site

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pawrest/pawrest/internal/flow"
	"github.com/pawrest/pawrest/internal/model"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return r
}

func closedView() flow.View {
	return flow.View{
		Signup: flow.SignupView{State: flow.SignupClosed},
		Login:  flow.LoginView{State: flow.LoginClosed},
	}
}

func render(t *testing.T, r *Renderer, page string, data *Page) string {
	t.Helper()
	var buf bytes.Buffer
	if err := r.Render(&buf, page, data); err != nil {
		t.Fatalf("Render(%s) error = %v", page, err)
	}
	return buf.String()
}

func assertContains(t *testing.T, body string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(body, want) {
			t.Errorf("body does not contain %q", want)
		}
	}
}

func assertNotContains(t *testing.T, body string, unwanted ...string) {
	t.Helper()
	for _, s := range unwanted {
		if strings.Contains(body, s) {
			t.Errorf("body unexpectedly contains %q", s)
		}
	}
}

func TestRender_HomeSections(t *testing.T) {
	r := newTestRenderer(t)

	body := render(t, r, PageHome, &Page{
		Title:     "PawRest",
		CSRFToken: "tok-123",
		Flow:      closedView(),
		Content:   DefaultContent(),
	})

	assertContains(t, body,
		`id="memorial-services"`,
		`id="our-promise"`,
		`id="why-choose"`,
		`id="how-it-works"`,
		"Private Memorial",
		"With Honor",
		"Verified Providers",
		"Say Goodbye",
		`name="csrf_token" value="tok-123"`,
		`id="nav-login"`,
		`id="nav-join"`,
	)
	assertNotContains(t, body, `id="signup-dialog"`, `id="login-dialog"`, `id="nav-logout"`)
}

func TestRender_SignedInNavigation(t *testing.T) {
	r := newTestRenderer(t)

	body := render(t, r, PageHome, &Page{
		Title:   "PawRest",
		Nav:     Nav{SignedIn: true, DashboardPath: "/dashboard/service-provider"},
		Flow:    closedView(),
		Content: DefaultContent(),
	})

	assertContains(t, body, `href="/dashboard/service-provider"`, `id="nav-logout"`)
	assertNotContains(t, body, `id="nav-join"`)
}

func TestRender_ChoosingRole(t *testing.T) {
	r := newTestRenderer(t)
	view := closedView()
	view.Signup = flow.SignupView{State: flow.SignupChoosingRole}

	body := render(t, r, PageHome, &Page{Flow: view, Content: DefaultContent()})

	assertContains(t, body,
		"Choose Your Role",
		`value="furParent"`,
		`value="serviceProvider"`,
		"Looking for pet care services for your beloved companions",
	)
}

func TestRender_FurParentFormKeepsValuesAndErrors(t *testing.T) {
	r := newTestRenderer(t)
	view := closedView()
	view.Signup = flow.SignupView{
		State:   flow.SignupFailed,
		Role:    model.RoleFurParent,
		Values:  map[string]string{"firstName": "Ana", "email": "ana@example.com"},
		Errors:  map[string]string{"confirmPassword": "Passwords don't match"},
		Message: "User already registered",
	}

	body := render(t, r, PageHome, &Page{Flow: view, Content: DefaultContent()})

	assertContains(t, body,
		`id="fur-parent-form"`,
		`value="Ana"`,
		`value="ana@example.com"`,
		"Passwords don&#39;t match",
		"User already registered",
	)
}

func TestRender_ProviderSteps(t *testing.T) {
	r := newTestRenderer(t)

	view := closedView()
	view.Signup = flow.SignupView{
		State:  flow.SignupCollectingServiceProvider,
		Role:   model.RoleServiceProvider,
		Step:   1,
		Values: map[string]string{"businessName": "Rainbow Bridge", "sex": "female"},
		Errors: map[string]string{},
	}
	body := render(t, r, PageHome, &Page{Flow: view, Content: DefaultContent()})
	assertContains(t, body, `id="provider-details-form"`, `value="Rainbow Bridge"`, `value="female" selected`)
	assertNotContains(t, body, `type="file"`)

	view.Signup.Step = 2
	view.Signup.Documents = map[string]string{"birCertificate": "bir.pdf"}
	view.Signup.Errors = map[string]string{"governmentId": "Please upload your Government ID"}
	body = render(t, r, PageHome, &Page{Flow: view, Content: DefaultContent()})
	assertContains(t, body,
		`id="provider-documents-form"`,
		`enctype="multipart/form-data"`,
		`name="birCertificate"`,
		"Selected: bir.pdf",
		"Please upload your Government ID",
		`formaction="/flow/signup/back"`,
	)
}

func TestRender_SignupSucceeded(t *testing.T) {
	r := newTestRenderer(t)
	view := closedView()
	view.Signup = flow.SignupView{
		State:  flow.SignupSucceeded,
		Role:   model.RoleFurParent,
		Notice: "Account created successfully! Please check your email to verify your account.",
	}

	body := render(t, r, PageHome, &Page{Flow: view, Content: DefaultContent()})

	assertContains(t, body, "Please check your email to verify your account.")
	assertNotContains(t, body, `id="fur-parent-form"`)
}

func TestRender_LoginReset(t *testing.T) {
	r := newTestRenderer(t)
	view := closedView()
	view.Login = flow.LoginView{
		State:       flow.LoginResettingPassword,
		ResetEmail:  "ana@example.com",
		ResetNotice: "Password reset instructions have been sent to your email.",
	}

	body := render(t, r, PageHome, &Page{Flow: view, Content: DefaultContent()})

	assertContains(t, body, `id="reset-form"`, `value="ana@example.com"`, `id="reset-notice"`)
	assertNotContains(t, body, `id="login-form"`)
}

func TestRender_AdminDashboard(t *testing.T) {
	r := newTestRenderer(t)
	attempts := []*model.RegistrationAttempt{{
		Email:        "ben@rainbowbridge.ph",
		Role:         model.RoleServiceProvider,
		AccountID:    "acc-1",
		FailedStep:   "upload:government_id",
		ErrorMessage: "new row violates row-level security policy",
		UpdatedAt:    time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}}

	body := render(t, r, PageDashboard, &Page{
		Nav:       Nav{SignedIn: true, DashboardPath: "/dashboard/admin"},
		Dashboard: AdminDashboard(1, attempts),
	})

	assertContains(t, body, "Welcome, Admin", `id="pending-count">1<`, "upload:government_id", "2026-03-01 09:30", "new row violates row-level security policy")
	assertNotContains(t, body, `id="journal-unavailable"`)
}

func TestRender_AdminDashboardUnavailable(t *testing.T) {
	r := newTestRenderer(t)

	body := render(t, r, PageDashboard, &Page{
		Nav:       Nav{SignedIn: true, DashboardPath: "/dashboard/admin"},
		Dashboard: AdminDashboardUnavailable(),
	})

	assertContains(t, body, "Welcome, Admin", `id="journal-unavailable"`)
	assertNotContains(t, body, `id="pending-count"`, "did not finish")
}

func TestRender_ServiceProviderDashboardGreeting(t *testing.T) {
	r := newTestRenderer(t)

	tests := []struct {
		name     string
		metadata model.AccountMetadata
		want     string
	}{
		{"business name", model.AccountMetadata{Role: "serviceProvider", FirstName: "Ben", BusinessName: "Rainbow Bridge"}, "Welcome, Rainbow Bridge"},
		{"first name fallback", model.AccountMetadata{Role: "serviceProvider", FirstName: "Ben"}, "Welcome, Ben"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := render(t, r, PageDashboard, &Page{
				Dashboard: ServiceProviderDashboard(&model.Account{ID: "acc-1", Metadata: tt.metadata}),
			})
			assertContains(t, body, tt.want)
		})
	}
}

func TestRender_FurParentDashboardGreeting(t *testing.T) {
	r := newTestRenderer(t)

	body := render(t, r, PageDashboard, &Page{
		Dashboard: FurParentDashboard(&model.Account{Metadata: model.AccountMetadata{FirstName: "Ana"}}),
	})

	assertContains(t, body, "Welcome, Ana!")
	assertNotContains(t, body, `id="reconciliation"`)
}

func TestRender_UnknownPage(t *testing.T) {
	r := newTestRenderer(t)
	var buf bytes.Buffer
	if err := r.Render(&buf, "missing", &Page{}); err == nil {
		t.Fatal("expected error for unknown page")
	}
	if buf.Len() != 0 {
		t.Errorf("expected nothing written, got %d bytes", buf.Len())
	}
}

func TestRenderPrivacy(t *testing.T) {
	r := newTestRenderer(t)
	var buf bytes.Buffer
	if err := r.RenderPrivacy(&buf, DefaultContent()); err != nil {
		t.Fatalf("RenderPrivacy() error = %v", err)
	}
	assertContains(t, buf.String(), "Privacy Policy for PawRest", "Data Privacy Act of 2012", "Right to erasure or blocking")
	assertNotContains(t, buf.String(), "<html")
}

func TestStaticHandler(t *testing.T) {
	srv := httptest.NewServer(http.StripPrefix("/static/", StaticHandler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/static/site.css")
	if err != nil {
		t.Fatalf("GET site.css: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/css") {
		t.Errorf("Content-Type = %q, want text/css", ct)
	}
}
