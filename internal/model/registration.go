package model

import "time"

// RegistrationStatus は登録処理ジャーナルの状態。
type RegistrationStatus string

const (
	RegistrationStarted           RegistrationStatus = "started"
	RegistrationAccountCreated    RegistrationStatus = "account_created"
	RegistrationDocumentsUploaded RegistrationStatus = "documents_uploaded"
	RegistrationCompleted         RegistrationStatus = "completed"
	// RegistrationFailed はアカウント作成前に失敗したことを示す。プロバイダー側に残骸はない。
	RegistrationFailed RegistrationStatus = "failed"
	// RegistrationNeedsReconciliation はアカウント作成後の手順で失敗したことを示す。
	// アカウントは残ったままなので運用者による確認が必要。
	RegistrationNeedsReconciliation RegistrationStatus = "needs_reconciliation"
)

// RegistrationAttempt は1回の登録試行の記録。
type RegistrationAttempt struct {
	ID           string
	Email        string
	Role         Role
	AccountID    string
	Status       RegistrationStatus
	FailedStep   string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
