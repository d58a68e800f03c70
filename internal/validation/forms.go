package validation

import (
	"fmt"

	"github.com/pawrest/pawrest/internal/model"
)

// LoginInput はログインフォームの入力値。
type LoginInput struct {
	Email    string
	Password string
}

// Login は検証済みのログイン情報。
type Login struct {
	Email    string
	Password string
}

// SignupInput はサインアップフォームの入力値。Roleで必要な項目が変わる。
type SignupInput struct {
	Role string

	FirstName       string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
	PrivacyPolicy   bool

	Sex                 string
	BusinessName        string
	BusinessAddress     string
	BusinessPhone       string
	BusinessEmail       string
	BusinessDescription string

	Documents map[model.DocumentKind]*model.Upload
}

// Common はロール共通の検証済み項目。
type Common struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// SignupForm は検証済みのサインアップ内容。
// FurParentSignup と ServiceProviderSignup のみが実装する。
type SignupForm interface {
	Role() model.Role
	Credentials() Common
	signupForm()
}

// FurParentSignup はペットオーナーの検証済みサインアップ。
type FurParentSignup struct {
	Common
}

// Role はRoleFurParentを返す。
func (FurParentSignup) Role() model.Role { return model.RoleFurParent }

// Credentials は共通項目を返す。
func (f FurParentSignup) Credentials() Common { return f.Common }

func (FurParentSignup) signupForm() {}

// Business は事業者の事業情報。
type Business struct {
	Name        string
	Address     string
	Phone       string
	Email       string
	Description string
}

// ServiceProviderSignup は事業者の検証済みサインアップ。必須書類はすべて揃っている。
type ServiceProviderSignup struct {
	Common
	Sex       string
	Business  Business
	Documents map[model.DocumentKind]*model.Upload
}

// Role はRoleServiceProviderを返す。
func (ServiceProviderSignup) Role() model.Role { return model.RoleServiceProvider }

// Credentials は共通項目を返す。
func (s ServiceProviderSignup) Credentials() Common { return s.Common }

func (ServiceProviderSignup) signupForm() {}

// Login はログインフォームを検証する。
func (v *Validator) Login(in LoginInput) (*Login, FieldErrors) {
	errs := FieldErrors{}
	v.runStruct(loginSchema{Email: in.Email, Password: in.Password}, errs)
	if errs.Has("password") {
		errs["password"] = msgPasswordRequired
	}
	if !errs.Empty() {
		return nil, errs
	}
	return &Login{Email: in.Email, Password: in.Password}, nil
}

// Reset はパスワードリセット要求のメールアドレスを検証する。
// 空の場合は入力を促すメッセージになる。
func (v *Validator) Reset(email string) FieldErrors {
	errs := FieldErrors{}
	if email == "" {
		errs.add("email", msgEmailRequired)
		return errs
	}
	v.runStruct(resetSchema{Email: email}, errs)
	if errs.Empty() {
		return nil
	}
	return errs
}

// Signup はサインアップ全体を検証する。
// フィールド単位のルールの後でパスワード確認の一致を検査し、confirmPasswordに結び付ける。
func (v *Validator) Signup(in SignupInput) (SignupForm, FieldErrors) {
	role, ok := model.ParseRole(in.Role)
	if !ok || role == model.RoleAdmin {
		return nil, FieldErrors{"role": msgRoleRequired}
	}

	errs := FieldErrors{}
	switch role {
	case model.RoleFurParent:
		v.runStruct(commonFrom(in), errs)
	case model.RoleServiceProvider:
		v.runStruct(providerFrom(in), errs)
		for _, kind := range model.RequiredDocuments() {
			if msg := v.Document(kind, in.Documents[kind]); msg != "" {
				errs.add(DocumentField(kind), msg)
			}
		}
	}
	checkConfirmation(in, errs)

	if !errs.Empty() {
		return nil, errs
	}

	common := Common{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Password:  in.Password,
	}
	if role == model.RoleFurParent {
		return FurParentSignup{Common: common}, nil
	}

	docs := make(map[model.DocumentKind]*model.Upload, len(model.RequiredDocuments()))
	for _, kind := range model.RequiredDocuments() {
		docs[kind] = in.Documents[kind]
	}
	return ServiceProviderSignup{
		Common: common,
		Sex:    in.Sex,
		Business: Business{
			Name:        in.BusinessName,
			Address:     in.BusinessAddress,
			Phone:       in.BusinessPhone,
			Email:       in.BusinessEmail,
			Description: in.BusinessDescription,
		},
		Documents: docs,
	}, nil
}

// ProviderDetails は事業者フォームの1ステップ目（書類以外）を検証する。
// 「Next」ボタンで2ステップ目に進む前に使う。
func (v *Validator) ProviderDetails(in SignupInput) FieldErrors {
	errs := FieldErrors{}
	v.runStruct(providerFrom(in), errs)
	checkConfirmation(in, errs)
	if errs.Empty() {
		return nil
	}
	return errs
}

// bytesPerMB はエラーメッセージで表示するMBの単位。
const bytesPerMB = 1_000_000

// Document は書類1件を検証し、問題があればメッセージを返す。
func (v *Validator) Document(kind model.DocumentKind, upload *model.Upload) string {
	if upload.Empty() {
		return fmt.Sprintf("Please upload your %s", kind.Label())
	}
	if upload.Size() > v.opts.MaxUploadSize {
		return fmt.Sprintf("Max file size is %dMB", v.opts.MaxUploadSize/bytesPerMB)
	}
	if !model.IsAcceptedContentType(upload.ContentType) {
		return "Only .jpg, .jpeg, .png and .pdf files are accepted"
	}
	return ""
}

// Has は指定フィールドにエラーがあるかを返す。
func (fe FieldErrors) Has(field string) bool {
	_, ok := fe[field]
	return ok
}

// DocumentField は書類種別に対応するフォームのフィールド名を返す。
func DocumentField(kind model.DocumentKind) string {
	switch kind {
	case model.DocumentBIRCertificate:
		return "birCertificate"
	case model.DocumentBusinessPermit:
		return "businessPermit"
	case model.DocumentGovernmentID:
		return "governmentId"
	default:
		return string(kind)
	}
}

// checkConfirmation はパスワード確認の一致を検査する。
func checkConfirmation(in SignupInput, errs FieldErrors) {
	if in.Password != in.ConfirmPassword {
		errs.add("confirmPassword", msgPasswordMismatch)
	}
}

func commonFrom(in SignupInput) commonSchema {
	return commonSchema{
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Email:           in.Email,
		Password:        in.Password,
		ConfirmPassword: in.ConfirmPassword,
		PrivacyPolicy:   in.PrivacyPolicy,
	}
}

func providerFrom(in SignupInput) providerSchema {
	return providerSchema{
		Common:              commonFrom(in),
		Sex:                 in.Sex,
		BusinessName:        in.BusinessName,
		BusinessAddress:     in.BusinessAddress,
		BusinessPhone:       in.BusinessPhone,
		BusinessEmail:       in.BusinessEmail,
		BusinessDescription: in.BusinessDescription,
	}
}
