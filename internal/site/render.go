// Package site はトップページ・ダイアログ・ダッシュボードのHTMLを描画する。
// テンプレートと静的ファイルはバイナリに埋め込む。
package site

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"

	"github.com/pawrest/pawrest/internal/flow"
	"github.com/pawrest/pawrest/internal/model"
	"github.com/pawrest/pawrest/internal/validation"
)

//go:embed templates static
var files embed.FS

// 描画できるページ名
const (
	PageHome      = "home"
	PageSignup    = "signup"
	PageDashboard = "dashboard"
)

// Nav はナビゲーションの表示内容。
type Nav struct {
	SignedIn      bool
	DashboardPath string
}

// Page はページテンプレートに渡すデータ。
type Page struct {
	Title     string
	CSRFToken string
	// ReturnTo はフローの操作後に戻るパス。トップページの場合は空。
	ReturnTo  string
	Nav       Nav
	Flow      flow.View
	Content   Content
	Dashboard *Dashboard
}

// Field はフォームの入力欄1つ分の表示内容。
type Field struct {
	Name        string
	Label       string
	Type        string
	Placeholder string
	Value       string
	Error       string
}

// Document は書類アップロード欄の表示内容。
type Document struct {
	Field    string
	Label    string
	Filename string
	Error    string
}

// Renderer は埋め込みテンプレートからページを描画する。
type Renderer struct {
	pages    map[string]*template.Template
	partials *template.Template
}

// NewRenderer は全ページのテンプレートを解析してRendererを生成する。
func NewRenderer() (*Renderer, error) {
	base, err := template.New("base").Funcs(template.FuncMap{
		"field":       field,
		"documents":   documents,
		"loginValues": loginValues,
		"resetValues": resetValues,
	}).ParseFS(files, "templates/layout.html", "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	pages := make(map[string]*template.Template)
	for _, name := range []string{PageHome, PageSignup, PageDashboard} {
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("failed to clone layout for %s: %w", name, err)
		}
		if _, err := t.ParseFS(files, "templates/pages/"+name+".html"); err != nil {
			return nil, fmt.Errorf("failed to parse page %s: %w", name, err)
		}
		pages[name] = t
	}

	return &Renderer{pages: pages, partials: base}, nil
}

// Render はページを描画してwに書き込む。
// 描画が途中で失敗した場合に半端なHTMLを返さないよう、バッファしてから書き込む。
func (r *Renderer) Render(w io.Writer, page string, data *Page) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page: %s", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("failed to render %s: %w", page, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// RenderPrivacy はプライバシーポリシーの断片を描画する。
func (r *Renderer) RenderPrivacy(w io.Writer, content Content) error {
	var buf bytes.Buffer
	if err := r.partials.ExecuteTemplate(&buf, "privacy-policy", content); err != nil {
		return fmt.Errorf("failed to render privacy policy: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// StaticHandler は埋め込みの静的ファイルを配信するハンドラーを返す。
func StaticHandler() http.Handler {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}

// field は入力欄の表示内容を組み立てる。
func field(values, errs map[string]string, name, label, typ, placeholder string) Field {
	return Field{
		Name:        name,
		Label:       label,
		Type:        typ,
		Placeholder: placeholder,
		Value:       values[name],
		Error:       errs[name],
	}
}

// documents は必須書類のアップロード欄を提出順に返す。
func documents(s flow.SignupView) []Document {
	kinds := model.RequiredDocuments()
	out := make([]Document, 0, len(kinds))
	for _, kind := range kinds {
		name := validation.DocumentField(kind)
		out = append(out, Document{
			Field:    name,
			Label:    kind.Label(),
			Filename: s.Documents[name],
			Error:    s.Errors[name],
		})
	}
	return out
}

func loginValues(l flow.LoginView) map[string]string {
	return map[string]string{"email": l.Email}
}

func resetValues(l flow.LoginView) map[string]string {
	return map[string]string{"email": l.ResetEmail}
}
