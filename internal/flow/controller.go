package flow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/pawrest/pawrest/internal/metrics"
	"github.com/pawrest/pawrest/internal/model"
	"github.com/pawrest/pawrest/internal/signup"
	"github.com/pawrest/pawrest/internal/supabase"
	"github.com/pawrest/pawrest/internal/validation"
)

// ErrUnknownRole はサインアップで選択できないロールが指定された場合のエラー。
var ErrUnknownRole = errors.New("role cannot be chosen at signup")

// Registrar はサインアップ送信を処理する。signup.Registrarが実装する。
type Registrar interface {
	Register(ctx context.Context, form validation.SignupForm) (*signup.Result, error)
}

// Authenticator はログインとパスワードリセットを処理する。auth.Serviceが実装する。
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*model.Session, *model.Account, error)
	LookupRole(ctx context.Context, accountID, accessToken string) (model.Role, bool, error)
	ResetPassword(ctx context.Context, email string) error
}

// Deps はControllerが共有する依存。
type Deps struct {
	Validator *validation.Validator
	Registrar Registrar
	Auth      Authenticator
	Metrics   metrics.MetricsCollector
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	Session  *model.Session
	Account  *model.Account
	Role     model.Role
	Redirect string
}

// Controller は訪問者1人分のダイアログ状態を管理する。
// サインアップとログインは同時に開かない。一方を開くともう一方は閉じて入力値を破棄する。
type Controller struct {
	mu     sync.Mutex
	deps   Deps
	signup SignupDialog
	login  LoginDialog
}

// NewController は両ダイアログが閉じた状態のControllerを生成する。
func NewController(deps Deps) *Controller {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	return &Controller{
		deps:   deps,
		signup: closedSignup(),
		login:  closedLogin(),
	}
}

// View は現在の状態の描画用コピーを返す。
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{Signup: c.signup.view(), Login: c.login.view()}
}

// OpenSignup はロール選択を表示し、ログインダイアログを閉じる。
func (c *Controller) OpenSignup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.login = closedLogin()
	c.signup = SignupDialog{State: SignupChoosingRole}
}

// SelectRole はロールを確定して入力フォームに進む。
// ロール選択中以外の状態では何もしない（ロールの変更はBackToRolesで入力値ごと破棄してから行う）。
func (c *Controller) SelectRole(role model.Role) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.signup.State != SignupChoosingRole {
		return nil
	}
	switch role {
	case model.RoleFurParent:
		c.signup.State = SignupCollectingFurParent
	case model.RoleServiceProvider:
		c.signup.State = SignupCollectingServiceProvider
		c.signup.Step = 1
	default:
		return ErrUnknownRole
	}
	c.signup.Role = role
	c.signup.Values = SignupValues{}
	c.signup.Documents = map[model.DocumentKind]*model.Upload{}
	c.signup.Errors = nil
	return nil
}

// UpdateSignup はフォームのテキスト項目を入力値にマージする。
// パスワード欄は再表示しないため、空で送られた場合は保持している値を残す。
func (c *Controller) UpdateSignup(values SignupValues) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.signup.collecting() {
		return
	}
	for _, field := range SignupFields {
		v, ok := values[field]
		if !ok {
			continue
		}
		if (field == FieldPassword || field == FieldConfirmPassword) && v == "" {
			continue
		}
		c.signup.Values[field] = v
	}
}

// AttachDocument は書類を検証して保持する。問題があればフィールドエラーとして記録し、メッセージを返す。
func (c *Controller) AttachDocument(kind model.DocumentKind, upload *model.Upload) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.signup.collecting() || c.signup.Role != model.RoleServiceProvider {
		return ""
	}

	field := validation.DocumentField(kind)
	if msg := c.deps.Validator.Document(kind, upload); msg != "" {
		c.setSignupError(field, msg)
		return msg
	}
	c.signup.Documents[kind] = upload
	delete(c.signup.Errors, field)
	return ""
}

// Next は事業者フォームの1ステップ目を検証し、問題がなければ書類のステップへ進む。
func (c *Controller) Next() validation.FieldErrors {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.signup.collecting() || c.signup.Role != model.RoleServiceProvider || c.signup.Step != 1 {
		return nil
	}
	if errs := c.deps.Validator.ProviderDetails(c.signup.input()); errs != nil {
		c.signup.Errors = errs
		return errs
	}
	c.signup.Step = 2
	c.signup.Errors = nil
	return nil
}

// Back は書類のステップから1ステップ目に戻る。入力値は保持する。
func (c *Controller) Back() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.signup.collecting() && c.signup.Role == model.RoleServiceProvider && c.signup.Step == 2 {
		c.signup.Step = 1
	}
}

// OpenServiceProviderSignup は事業者フォームを直接開く。ログインダイアログは閉じる。
// 事業者フォームの入力中や送信結果の表示中であれば状態を維持する。
func (c *Controller) OpenServiceProviderSignup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.signup.Role == model.RoleServiceProvider && c.signup.State != SignupClosed {
		return
	}
	c.login = closedLogin()
	c.signup = SignupDialog{
		State:     SignupCollectingServiceProvider,
		Role:      model.RoleServiceProvider,
		Step:      1,
		Values:    SignupValues{},
		Documents: map[model.DocumentKind]*model.Upload{},
	}
}

// BackToRoles はロール選択に戻る。入力値と書類は破棄する。
func (c *Controller) BackToRoles() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.signup.State == SignupClosed || c.signup.State == SignupSubmitting {
		return
	}
	c.signup = SignupDialog{State: SignupChoosingRole}
}

// SubmitSignup はサインアップ全体を検証して登録処理を実行する。
// 検証エラーの場合はネットワーク呼び出しを行わず、入力フォームに戻してエラーを返す。
// 登録に失敗した場合は入力値を保持したままfailed状態になる。
func (c *Controller) SubmitSignup(ctx context.Context) validation.FieldErrors {
	c.mu.Lock()
	if !c.signup.collecting() {
		c.mu.Unlock()
		return nil
	}

	role := c.signup.Role
	form, errs := c.deps.Validator.Signup(c.signup.input())
	if errs != nil {
		c.signup.State = collectingState(role)
		c.signup.Errors = c.signup.keepDocumentErrors(errs)
		c.signup.Message = ""
		if role == model.RoleServiceProvider && hasDetailError(errs) {
			c.signup.Step = 1
		}
		c.mu.Unlock()
		c.deps.Metrics.RecordRegistration(string(role), metrics.OutcomeInvalid)
		return errs
	}

	c.signup.State = SignupSubmitting
	c.signup.Errors = nil
	c.signup.Message = ""
	c.mu.Unlock()

	_, err := c.deps.Registrar.Register(ctx, form)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.signup.State != SignupSubmitting {
		// 送信中に閉じられた場合は結果を画面に反映しない
		return nil
	}
	if err != nil {
		c.signup.State = SignupFailed
		c.signup.Message = bannerMessage(err)
		return nil
	}

	notice := furParentCreatedNotice
	if role == model.RoleServiceProvider {
		notice = serviceProviderCreatedNotice
	}
	c.signup = SignupDialog{State: SignupSucceeded, Role: role, Notice: notice}
	return nil
}

// OpenLogin はログインダイアログを表示し、サインアップダイアログを閉じる。
func (c *Controller) OpenLogin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signup = closedSignup()
	c.login = LoginDialog{State: LoginCollectingCredentials}
}

// SubmitLogin はログイン情報を検証してサインインする。
// 成功した場合はセッションとロールに応じたダッシュボードのパスを返す。
// ロールはメタデータを優先し、なければbusinessesテーブルを参照し、どちらにもなければfurParentとする。
func (c *Controller) SubmitLogin(ctx context.Context, in validation.LoginInput) (*LoginResult, validation.FieldErrors) {
	c.mu.Lock()
	if c.login.State != LoginCollectingCredentials && c.login.State != LoginFailed {
		c.mu.Unlock()
		return nil, nil
	}

	c.login.Email = in.Email
	creds, errs := c.deps.Validator.Login(in)
	if errs != nil {
		c.login.State = LoginCollectingCredentials
		c.login.Errors = errs
		c.login.Message = ""
		c.mu.Unlock()
		c.deps.Metrics.RecordLogin(metrics.OutcomeInvalid)
		return nil, errs
	}

	c.login.State = LoginSubmitting
	c.login.Errors = nil
	c.login.Message = ""
	c.mu.Unlock()

	result, err := c.signIn(ctx, creds)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.deps.Metrics.RecordLogin(metrics.OutcomeProviderError)
		if c.login.State == LoginSubmitting {
			c.login.State = LoginFailed
			c.login.Message = bannerMessage(err)
		}
		return nil, nil
	}

	c.deps.Metrics.RecordLogin(metrics.OutcomeSuccess)
	c.login = LoginDialog{State: LoginSucceeded, Email: in.Email}
	return result, nil
}

func (c *Controller) signIn(ctx context.Context, creds *validation.Login) (*LoginResult, error) {
	session, account, err := c.deps.Auth.SignIn(ctx, creds.Email, creds.Password)
	if err != nil {
		return nil, err
	}

	role, ok := account.Role()
	if !ok {
		role, ok, err = c.deps.Auth.LookupRole(ctx, account.ID, session.AccessToken)
		if err != nil {
			slog.Warn("failed to look up role, using default",
				slog.String("account_id", account.ID),
				slog.String("error", err.Error()),
			)
		}
		if !ok {
			role = model.RoleFurParent
		}
	}

	return &LoginResult{
		Session:  session,
		Account:  account,
		Role:     role,
		Redirect: role.DashboardPath(),
	}, nil
}

// SetLoginEmail は入力途中のメールアドレスを保持する。
func (c *Controller) SetLoginEmail(email string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.login.State == LoginCollectingCredentials || c.login.State == LoginFailed {
		c.login.Email = email
	}
}

// ForgotPassword はパスワードリセットの入力に切り替える。入力済みのメールアドレスを引き継ぐ。
func (c *Controller) ForgotPassword() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.login.State != LoginCollectingCredentials && c.login.State != LoginFailed {
		return
	}
	c.login.State = LoginResettingPassword
	c.login.ResetEmail = c.login.Email
	c.login.ResetErrors = nil
	c.login.ResetNotice = ""
	c.login.ResetFailed = false
}

// CancelReset はパスワードリセットからログイン入力に戻る。
func (c *Controller) CancelReset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.login.State != LoginResettingPassword {
		return
	}
	c.login.State = LoginCollectingCredentials
	c.login.ResetErrors = nil
	c.login.ResetNotice = ""
	c.login.ResetFailed = false
}

// SubmitReset はメールアドレスを検証してパスワード再設定メールを依頼する。
// 結果はダイアログ内の通知として表示し、ダイアログは閉じない。
func (c *Controller) SubmitReset(ctx context.Context, email string) validation.FieldErrors {
	c.mu.Lock()
	if c.login.State != LoginResettingPassword {
		c.mu.Unlock()
		return nil
	}

	c.login.ResetEmail = email
	c.login.ResetNotice = ""
	c.login.ResetFailed = false
	if errs := c.deps.Validator.Reset(email); errs != nil {
		c.login.ResetErrors = errs
		c.mu.Unlock()
		c.deps.Metrics.RecordPasswordReset(metrics.OutcomeInvalid)
		return errs
	}
	c.login.ResetErrors = nil
	c.mu.Unlock()

	err := c.deps.Auth.ResetPassword(ctx, email)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.deps.Metrics.RecordPasswordReset(metrics.OutcomeProviderError)
		c.login.ResetNotice = bannerMessage(err)
		c.login.ResetFailed = true
		return nil
	}
	c.deps.Metrics.RecordPasswordReset(metrics.OutcomeSuccess)
	c.login.ResetNotice = resetSentNotice
	return nil
}

// SwitchToLogin はサインアップを閉じて新しいログインダイアログを開く。
func (c *Controller) SwitchToLogin() {
	c.OpenLogin()
}

// SwitchToSignup はログインを閉じて新しいサインアップダイアログを開く。
func (c *Controller) SwitchToSignup() {
	c.OpenSignup()
}

// Close は両ダイアログを閉じ、入力値と書類をすべて破棄する。
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signup = closedSignup()
	c.login = closedLogin()
}

func (c *Controller) setSignupError(field, msg string) {
	if c.signup.Errors == nil {
		c.signup.Errors = validation.FieldErrors{}
	}
	c.signup.Errors[field] = msg
}

// keepDocumentErrors は添付時に拒否された書類について、送信時の「未添付」より添付時の理由を残す。
func (d *SignupDialog) keepDocumentErrors(errs validation.FieldErrors) validation.FieldErrors {
	for _, kind := range model.RequiredDocuments() {
		field := validation.DocumentField(kind)
		if _, stored := d.Documents[kind]; stored {
			continue
		}
		if msg := d.Errors[field]; msg != "" {
			if _, missing := errs[field]; missing {
				errs[field] = msg
			}
		}
	}
	return errs
}

// collecting は入力値を受け付ける状態かどうかを返す。
func (d *SignupDialog) collecting() bool {
	return d.State == SignupCollectingFurParent || d.State == SignupCollectingServiceProvider || d.State == SignupFailed
}

func collectingState(role model.Role) SignupState {
	if role == model.RoleServiceProvider {
		return SignupCollectingServiceProvider
	}
	return SignupCollectingFurParent
}

// hasDetailError は書類以外の項目にエラーがあるかを返す。
func hasDetailError(errs validation.FieldErrors) bool {
	for field := range errs {
		if !isDocumentField(field) {
			return true
		}
	}
	return false
}

func isDocumentField(field string) bool {
	for _, kind := range model.RequiredDocuments() {
		if validation.DocumentField(kind) == field {
			return true
		}
	}
	return false
}

// bannerMessage はエラーをダイアログに表示する1行の文言に変換する。
func bannerMessage(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	var perr *supabase.Error
	if errors.As(err, &perr) {
		return perr.Message
	}
	slog.Error("flow request failed", slog.String("error", err.Error()))
	return model.NewProviderError("").Message
}
