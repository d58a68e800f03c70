package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/pawrest/pawrest/internal/flow"
	"github.com/pawrest/pawrest/internal/middleware"
	"github.com/pawrest/pawrest/internal/model"
	"github.com/pawrest/pawrest/internal/validation"
)

const (
	// flowCookieName は訪問者のダイアログ状態を引くCookieの名前。
	flowCookieName = "flow_id"

	// returnToField は操作後に戻るページを指定するフォームの項目名。
	returnToField = "return_to"

	// multipartMemory はmultipartフォームをメモリに保持する上限。
	multipartMemory = 8 << 20
)

// FlowStore は訪問者ごとのControllerを保持するストア。flow.Storeが実装する。
type FlowStore interface {
	Get(id string) (*flow.Controller, bool)
	GetOrCreate(id string) (string, *flow.Controller)
}

// flowCookies はflow_id CookieとControllerの対応付けを扱う。
type flowCookies struct {
	store  FlowStore
	config AuthHandlerConfig
}

// controller はリクエストの訪問者のControllerを返す。なければ作成してCookieを設定する。
func (fc flowCookies) controller(w http.ResponseWriter, r *http.Request) *flow.Controller {
	id := ""
	if cookie, err := r.Cookie(flowCookieName); err == nil {
		id = cookie.Value
	}

	newID, c := fc.store.GetOrCreate(id)
	if newID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     flowCookieName,
			Value:    newID,
			Path:     "/",
			Domain:   fc.config.CookieDomain,
			HttpOnly: true,
			Secure:   fc.config.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return c
}

// view はリクエストの訪問者のダイアログ状態を返す。Controllerがなければ両方閉じた状態を返す。
// 表示だけのリクエストではControllerを作成しない。
func (fc flowCookies) view(r *http.Request) flow.View {
	if cookie, err := r.Cookie(flowCookieName); err == nil {
		if c, ok := fc.store.Get(cookie.Value); ok {
			return c.View()
		}
	}
	return flow.View{
		Signup: flow.SignupView{State: flow.SignupClosed},
		Login:  flow.LoginView{State: flow.LoginClosed},
	}
}

// FlowHandler はサインアップ・ログインダイアログの操作を受け付けるHTTPハンドラー。
// どの操作も状態を更新したあとページへ303でリダイレクトする。
type FlowHandler struct {
	flowCookies
}

// NewFlowHandler はFlowHandlerを生成する。
func NewFlowHandler(store FlowStore, config AuthHandlerConfig) *FlowHandler {
	return &FlowHandler{flowCookies{store: store, config: config}}
}

// OpenSignup はロール選択を開く。
// POST /flow/signup/open
func (h *FlowHandler) OpenSignup(w http.ResponseWriter, r *http.Request) {
	h.controller(w, r).OpenSignup()
	redirectHome(w, r)
}

// SelectRole はロールを確定する。
// POST /flow/signup/role
func (h *FlowHandler) SelectRole(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)

	role, ok := model.ParseRole(r.PostFormValue("role"))
	if !ok {
		middleware.WriteErrorResponse(w, r, http.StatusBadRequest, model.NewValidationError())
		return
	}
	if err := c.SelectRole(role); err != nil {
		if errors.Is(err, flow.ErrUnknownRole) {
			middleware.WriteErrorResponse(w, r, http.StatusBadRequest, model.NewValidationError())
			return
		}
		slog.Error("failed to select role", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w, r)
		return
	}
	redirectReturn(w, r)
}

// NextStep は事業者フォームの1ステップ目を検証して書類のステップへ進む。
// POST /flow/signup/next
func (h *FlowHandler) NextStep(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)
	if !h.collectSignup(w, r, c) {
		return
	}
	c.Next()
	redirectReturn(w, r)
}

// PreviousStep は書類のステップから1ステップ目に戻る。選択済みの書類は保持する。
// POST /flow/signup/back
func (h *FlowHandler) PreviousStep(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)
	if !h.collectSignup(w, r, c) {
		return
	}
	c.Back()
	redirectReturn(w, r)
}

// BackToRoles はロール選択に戻る。入力値は破棄する。
// POST /flow/signup/roles
func (h *FlowHandler) BackToRoles(w http.ResponseWriter, r *http.Request) {
	h.controller(w, r).BackToRoles()
	redirectHome(w, r)
}

// SubmitSignup はサインアップを送信する。
// 送信はブラウザの切断で中断しないよう、リクエストのキャンセルを切り離して実行する。
// POST /flow/signup/submit
func (h *FlowHandler) SubmitSignup(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)
	if !h.collectSignup(w, r, c) {
		return
	}
	c.SubmitSignup(context.WithoutCancel(r.Context()))
	redirectReturn(w, r)
}

// OpenLogin はログインダイアログを開く。
// POST /flow/login/open
func (h *FlowHandler) OpenLogin(w http.ResponseWriter, r *http.Request) {
	h.controller(w, r).OpenLogin()
	redirectHome(w, r)
}

// SubmitLogin はログインを送信する。
// 成功した場合はセッションCookieを設定してロールのダッシュボードへリダイレクトする。
// POST /flow/login/submit
func (h *FlowHandler) SubmitLogin(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)

	result, _ := c.SubmitLogin(context.WithoutCancel(r.Context()), validation.LoginInput{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	})
	if result == nil {
		redirectHome(w, r)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    result.Session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	c.Close()

	http.Redirect(w, r, result.Redirect, http.StatusSeeOther)
}

// ForgotPassword はパスワードリセットの入力に切り替える。
// POST /flow/login/forgot
func (h *FlowHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)
	c.SetLoginEmail(r.PostFormValue("email"))
	c.ForgotPassword()
	redirectHome(w, r)
}

// CancelReset はパスワードリセットからログイン入力に戻る。
// POST /flow/login/cancel-reset
func (h *FlowHandler) CancelReset(w http.ResponseWriter, r *http.Request) {
	h.controller(w, r).CancelReset()
	redirectHome(w, r)
}

// SubmitReset はパスワード再設定メールを依頼する。
// POST /flow/login/reset
func (h *FlowHandler) SubmitReset(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)
	c.SubmitReset(context.WithoutCancel(r.Context()), r.PostFormValue("email"))
	redirectHome(w, r)
}

// SwitchToLogin はサインアップを閉じてログインを開く。
// POST /flow/switch/login
func (h *FlowHandler) SwitchToLogin(w http.ResponseWriter, r *http.Request) {
	h.controller(w, r).SwitchToLogin()
	redirectHome(w, r)
}

// SwitchToSignup はログインを閉じてサインアップを開く。
// POST /flow/switch/signup
func (h *FlowHandler) SwitchToSignup(w http.ResponseWriter, r *http.Request) {
	h.controller(w, r).SwitchToSignup()
	redirectHome(w, r)
}

// Close は両ダイアログを閉じて入力値を破棄する。
// POST /flow/close
func (h *FlowHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.controller(w, r).Close()
	redirectHome(w, r)
}

// collectSignup はフォームのテキスト項目と書類をControllerに反映する。
// フォームを解析できなかった場合はエラーレスポンスを書き込んでfalseを返す。
func (h *FlowHandler) collectSignup(w http.ResponseWriter, r *http.Request, c *flow.Controller) bool {
	if err := parseFlowForm(r); err != nil {
		slog.Warn("failed to parse signup form", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, r, http.StatusRequestEntityTooLarge, model.NewValidationError())
		return false
	}

	values := flow.SignupValues{}
	for _, name := range flow.SignupFields {
		if vs, ok := r.PostForm[name]; ok && len(vs) > 0 {
			values[name] = vs[0]
		}
	}
	c.UpdateSignup(values)

	for _, kind := range model.RequiredDocuments() {
		upload, err := readUpload(r, validation.DocumentField(kind))
		if err != nil {
			slog.Warn("failed to read document",
				slog.String("document", string(kind)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if upload != nil {
			c.AttachDocument(kind, upload)
		}
	}
	return true
}

// parseFlowForm はContent-Typeに応じてフォームを解析する。
func parseFlowForm(r *http.Request) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return r.ParseMultipartForm(multipartMemory)
	}
	return r.ParseForm()
}

// readUpload はmultipartフォームのファイルを読み取る。ファイルが選択されていなければnilを返す。
// Content-Typeが送られていない場合は内容から判定する。
func readUpload(r *http.Request, field string) (*model.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return &model.Upload{
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

// redirectHome はトップページへ303でリダイレクトする。
func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// redirectReturn はフォームのreturn_toが許可されたパスならそこへ、それ以外はトップページへリダイレクトする。
func redirectReturn(w http.ResponseWriter, r *http.Request) {
	if r.PostFormValue(returnToField) == signupPath {
		http.Redirect(w, r, signupPath, http.StatusSeeOther)
		return
	}
	redirectHome(w, r)
}
