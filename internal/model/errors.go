// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, registration, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeEmailRequired      = "EMAIL_REQUIRED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeProvider           = "PROVIDER_ERROR"
	ErrCodeRegistrationFailed = "REGISTRATION_FAILED"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeRateLimited        = "RATE_LIMITED"
)

// GenericRegistrationMessage はアカウント作成後に失敗した場合に利用者へ見せる文言。
const GenericRegistrationMessage = "An error occurred during registration. Please try again."

// NewValidationError はフォーム検証エラーを生成する。
func NewValidationError() *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "Some fields need your attention.",
		Category: "validation",
		Action:   "Correct the highlighted fields and submit again.",
	}
}

// NewEmailRequiredError はパスワードリセット時にメールアドレスが空の場合のエラーを生成する。
func NewEmailRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailRequired,
		Message:  "Please enter your email address",
		Category: "validation",
		Action:   "Enter the email address you signed up with.",
	}
}

// NewProviderError はプロバイダーが返したメッセージをそのまま表示するエラーを生成する。
func NewProviderError(message string) *APIError {
	if message == "" {
		message = "The authentication service is unavailable."
	}
	return &APIError{
		Code:     ErrCodeProvider,
		Message:  message,
		Category: "auth",
		Action:   "Please try again.",
	}
}

// NewRegistrationFailedError は部分的に失敗した登録処理の汎用エラーを生成する。
func NewRegistrationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeRegistrationFailed,
		Message:  GenericRegistrationMessage,
		Category: "registration",
		Action:   "If the problem persists, contact support before signing up again.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Please log in to continue.",
		Category: "auth",
		Action:   "Log in with an account that has access to this page.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many attempts. Please try again later.",
		Category: "system",
		Action:   "Wait a minute before trying again.",
	}
}
