// Package flow はサインアップ・ログインダイアログの状態遷移を提供する。
// 画面はControllerの状態を描画するだけで、遷移の判断はすべてここで行う。
package flow

import (
	"github.com/pawrest/pawrest/internal/model"
	"github.com/pawrest/pawrest/internal/validation"
)

// SignupState はサインアップダイアログの状態。
type SignupState string

const (
	SignupClosed                    SignupState = "closed"
	SignupChoosingRole              SignupState = "choosingRole"
	SignupCollectingFurParent       SignupState = "collectingFurParentFields"
	SignupCollectingServiceProvider SignupState = "collectingServiceProviderFields"
	SignupSubmitting                SignupState = "submitting"
	SignupSucceeded                 SignupState = "succeeded"
	SignupFailed                    SignupState = "failed"
)

// LoginState はログインダイアログの状態。
type LoginState string

const (
	LoginClosed                LoginState = "closed"
	LoginCollectingCredentials LoginState = "collectingCredentials"
	LoginResettingPassword     LoginState = "resettingPassword"
	LoginSubmitting            LoginState = "submitting"
	LoginSucceeded             LoginState = "succeeded"
	LoginFailed                LoginState = "failed"
)

// サインアップ入力のフィールド名。フォームのname属性と検証エラーのキーに共通で使う。
const (
	FieldFirstName           = "firstName"
	FieldLastName            = "lastName"
	FieldEmail               = "email"
	FieldPassword            = "password"
	FieldConfirmPassword     = "confirmPassword"
	FieldPrivacyPolicy       = "privacyPolicy"
	FieldSex                 = "sex"
	FieldBusinessName        = "businessName"
	FieldBusinessAddress     = "businessAddress"
	FieldBusinessPhone       = "businessPhone"
	FieldBusinessEmail       = "businessEmail"
	FieldBusinessDescription = "businessDescription"
)

// SignupFields はサインアップで受け付けるテキスト項目の一覧。
var SignupFields = []string{
	FieldFirstName, FieldLastName, FieldEmail, FieldPassword, FieldConfirmPassword,
	FieldPrivacyPolicy, FieldSex, FieldBusinessName, FieldBusinessAddress,
	FieldBusinessPhone, FieldBusinessEmail, FieldBusinessDescription,
}

// SignupValues はフォームから送られたテキスト項目。キーはField*定数。
type SignupValues map[string]string

// 画面に出す通知文言
const (
	furParentCreatedNotice       = "Account created successfully! Please check your email to verify your account."
	serviceProviderCreatedNotice = "Registration successful! Please check your email to verify your account."
	resetSentNotice              = "Password reset instructions have been sent to your email."
)

// SignupDialog はサインアップダイアログの状態と入力値。
type SignupDialog struct {
	State SignupState
	Role  model.Role
	// Step は事業者フォームのページ（1: 事業情報、2: 書類）。
	Step      int
	Values    SignupValues
	Documents map[model.DocumentKind]*model.Upload
	Errors    validation.FieldErrors
	// Message は送信失敗時のバナー文言。
	Message string
	// Notice は送信成功時の案内文言。
	Notice string
}

// LoginDialog はログインダイアログの状態と入力値。
type LoginDialog struct {
	State   LoginState
	Email   string
	Errors  validation.FieldErrors
	Message string

	ResetEmail  string
	ResetErrors validation.FieldErrors
	ResetNotice string
	// ResetFailed はResetNoticeが失敗の通知かどうか。
	ResetFailed bool
}

// SignupView は描画用のサインアップ状態のコピー。パスワードは含まない。
type SignupView struct {
	State     SignupState
	Role      model.Role
	Step      int
	Values    map[string]string
	Documents map[string]string // フィールド名 → ファイル名
	Errors    map[string]string
	Message   string
	Notice    string
}

// Open はダイアログを表示中かどうかを返す。
func (v SignupView) Open() bool { return v.State != SignupClosed }

// Collecting は入力フォームを表示する状態かどうかを返す。
func (v SignupView) Collecting() bool {
	return v.State == SignupCollectingFurParent || v.State == SignupCollectingServiceProvider || v.State == SignupFailed
}

// LoginView は描画用のログイン状態のコピー。
type LoginView struct {
	State       LoginState
	Email       string
	Errors      map[string]string
	Message     string
	ResetEmail  string
	ResetErrors map[string]string
	ResetNotice string
	ResetFailed bool
}

// Open はダイアログを表示中かどうかを返す。
func (v LoginView) Open() bool { return v.State != LoginClosed }

// Resetting はパスワードリセットの入力欄を表示する状態かどうかを返す。
func (v LoginView) Resetting() bool { return v.State == LoginResettingPassword }

// View はControllerの描画用スナップショット。
type View struct {
	Signup SignupView
	Login  LoginView
}

func closedSignup() SignupDialog {
	return SignupDialog{State: SignupClosed}
}

func closedLogin() LoginDialog {
	return LoginDialog{State: LoginClosed}
}

// input はサインアップ入力値を検証用の構造体に変換する。
func (d *SignupDialog) input() validation.SignupInput {
	v := d.Values
	return validation.SignupInput{
		Role:                string(d.Role),
		FirstName:           v[FieldFirstName],
		LastName:            v[FieldLastName],
		Email:               v[FieldEmail],
		Password:            v[FieldPassword],
		ConfirmPassword:     v[FieldConfirmPassword],
		PrivacyPolicy:       v[FieldPrivacyPolicy] == "true" || v[FieldPrivacyPolicy] == "on",
		Sex:                 v[FieldSex],
		BusinessName:        v[FieldBusinessName],
		BusinessAddress:     v[FieldBusinessAddress],
		BusinessPhone:       v[FieldBusinessPhone],
		BusinessEmail:       v[FieldBusinessEmail],
		BusinessDescription: v[FieldBusinessDescription],
		Documents:           d.Documents,
	}
}

func (d *SignupDialog) view() SignupView {
	view := SignupView{
		State:     d.State,
		Role:      d.Role,
		Step:      d.Step,
		Values:    map[string]string{},
		Documents: map[string]string{},
		Errors:    copyErrors(d.Errors),
		Message:   d.Message,
		Notice:    d.Notice,
	}
	for k, v := range d.Values {
		if k == FieldPassword || k == FieldConfirmPassword {
			continue
		}
		view.Values[k] = v
	}
	for kind, upload := range d.Documents {
		if !upload.Empty() {
			view.Documents[validation.DocumentField(kind)] = upload.Filename
		}
	}
	return view
}

func (d *LoginDialog) view() LoginView {
	return LoginView{
		State:       d.State,
		Email:       d.Email,
		Errors:      copyErrors(d.Errors),
		Message:     d.Message,
		ResetEmail:  d.ResetEmail,
		ResetErrors: copyErrors(d.ResetErrors),
		ResetNotice: d.ResetNotice,
		ResetFailed: d.ResetFailed,
	}
}

func copyErrors(errs validation.FieldErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for k, v := range errs {
		out[k] = v
	}
	return out
}
