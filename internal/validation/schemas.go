// Package validation はログイン・サインアップ・パスワードリセットの入力検証を提供する。
//
// 検証はネットワーク呼び出しの前に行う純粋関数で、利用者の入力エラーは
// フィールド名からメッセージへのマップ（FieldErrors）として返す。
// 入力エラーでpanicやerrorを返すことはない。
package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/pawrest/pawrest/internal/model"
)

// FieldErrors はフォームのフィールド名から表示用エラーメッセージへのマップ。
type FieldErrors map[string]string

// Empty はエラーが1件もないかを返す。
func (fe FieldErrors) Empty() bool {
	return len(fe) == 0
}

// add はフィールドに既存のエラーがない場合のみメッセージを設定する。
func (fe FieldErrors) add(field, message string) {
	if _, exists := fe[field]; !exists {
		fe[field] = message
	}
}

// Options は検証ルールの可変部分。
type Options struct {
	// RequireSymbol はパスワードに記号を必須とするかどうか。
	RequireSymbol bool
	// MaxUploadSize は書類1件あたりの最大バイト数。0の場合は5MB。
	MaxUploadSize int64
}

// Validator はスキーマ検証を行う。生成後はゴルーチンセーフ。
type Validator struct {
	validate *validator.Validate
	opts     Options
}

// New はValidatorを生成する。カスタムルールの登録に失敗した場合のみエラーを返す。
func New(opts Options) (*Validator, error) {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = model.DefaultMaxUploadSize
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	// エラーのフィールド名はフォームの name 属性に揃える
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("form")
	})

	err := validate.RegisterValidation("password_strength", func(fl validator.FieldLevel) bool {
		return passwordProblem(fl.Field().String(), opts.RequireSymbol) == ""
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register password_strength: %w", err)
	}

	return &Validator{validate: validate, opts: opts}, nil
}

// MaxUploadSize は書類1件あたりの最大バイト数を返す。
func (v *Validator) MaxUploadSize() int64 {
	return v.opts.MaxUploadSize
}

// loginSchema はログインフォームのルール。
type loginSchema struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

// resetSchema はパスワードリセット要求のルール。
type resetSchema struct {
	Email string `form:"email" validate:"required,email"`
}

// commonSchema は全ロール共通のサインアップ項目。
type commonSchema struct {
	FirstName       string `form:"firstName" validate:"min=2"`
	LastName        string `form:"lastName" validate:"min=2"`
	Email           string `form:"email" validate:"required,email"`
	Password        string `form:"password" validate:"password_strength"`
	ConfirmPassword string `form:"confirmPassword"`
	PrivacyPolicy   bool   `form:"privacyPolicy" validate:"eq=true"`
}

// providerSchema は事業者の1ステップ目（書類以外）の項目。
type providerSchema struct {
	Common              commonSchema
	Sex                 string `form:"sex" validate:"oneof=male female other"`
	BusinessName        string `form:"businessName" validate:"min=2"`
	BusinessAddress     string `form:"businessAddress" validate:"min=10"`
	BusinessPhone       string `form:"businessPhone" validate:"min=10"`
	BusinessEmail       string `form:"businessEmail" validate:"required,email"`
	BusinessDescription string `form:"businessDescription" validate:"min=50"`
}

// runStruct は構造体を検証し、結果をFieldErrorsに追加する。
func (v *Validator) runStruct(s interface{}, out FieldErrors) {
	err := v.validate.Struct(s)
	if err == nil {
		return
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// 構造体以外を渡した場合のみ到達する
		slog.Error("unexpected validation failure", slog.String("error", err.Error()))
		out.add("form", "The form could not be checked. Please try again.")
		return
	}

	for _, fe := range verrs {
		out.add(fe.Field(), v.message(fe))
	}
}

// message は検証エラーを表示用メッセージに変換する。
func (v *Validator) message(fe validator.FieldError) string {
	if fe.Tag() == "password_strength" {
		value, _ := fe.Value().(string)
		return passwordProblem(value, v.opts.RequireSymbol)
	}
	if msg, ok := fieldMessages[fe.Field()]; ok {
		return msg
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

// fieldMessages はフィールドごとの表示メッセージ。
var fieldMessages = map[string]string{
	"firstName":           "First name must be at least 2 characters",
	"lastName":            "Last name must be at least 2 characters",
	"email":               "Please enter a valid email address",
	"privacyPolicy":       "You must accept the privacy policy to continue",
	"sex":                 "Please select your sex",
	"businessName":        "Business name must be at least 2 characters",
	"businessAddress":     "Please provide a complete business address",
	"businessPhone":       "Please provide a valid phone number",
	"businessEmail":       "Please enter a valid business email address",
	"businessDescription": "Please provide a detailed description of your business (minimum 50 characters)",
}

// メッセージ定数
const (
	msgPasswordRequired = "Password is required"
	msgPasswordMismatch = "Passwords don't match"
	msgEmailRequired    = "Please enter your email address"
	msgRoleRequired     = "Please choose how you would like to join"
)
