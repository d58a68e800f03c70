// Package signup はサインアップ送信後の登録処理を提供する。
// アカウント作成、書類アップロード、事業者プロフィール登録を順に実行し、各段階をジャーナルに記録する。
package signup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pawrest/pawrest/internal/auth"
	"github.com/pawrest/pawrest/internal/metrics"
	"github.com/pawrest/pawrest/internal/model"
	"github.com/pawrest/pawrest/internal/repository"
	"github.com/pawrest/pawrest/internal/supabase"
	"github.com/pawrest/pawrest/internal/validation"
)

// AuthService は登録処理が利用する認証サービスの操作。auth.Serviceが実装する。
type AuthService interface {
	SignUp(ctx context.Context, email, password string, metadata model.AccountMetadata) (*auth.SignUpResult, error)
	UploadDocument(ctx context.Context, accountID string, kind model.DocumentKind, upload *model.Upload, accessToken string) error
	InsertBusinessProfile(ctx context.Context, profile *model.BusinessProfile, accessToken string) error
}

// Sanitizer は自由入力テキストからマークアップを取り除く。
type Sanitizer interface {
	Sanitize(input string) string
}

// Result は登録処理の結果。
type Result struct {
	Account *model.Account
	// VerificationRequired はメール確認が必要な場合にtrue。
	VerificationRequired bool
}

// Registrar は登録処理を実行する。
type Registrar struct {
	auth      AuthService
	journal   repository.RegistrationRepository
	sanitizer Sanitizer
	metrics   metrics.MetricsCollector
	now       func() time.Time
	newID     func() string
}

// NewRegistrar はRegistrarを生成する。metricsがnilの場合は記録しない。
func NewRegistrar(authService AuthService, journal repository.RegistrationRepository, sanitizer Sanitizer, mc metrics.MetricsCollector) *Registrar {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Registrar{
		auth:      authService,
		journal:   journal,
		sanitizer: sanitizer,
		metrics:   mc,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Register は検証済みのサインアップを登録する。
//
// アカウント作成に失敗した場合はプロバイダーのメッセージを持つAPIErrorを返す。
// アカウント作成後に失敗した場合、作成済みアカウントは削除できないため
// ジャーナルを needs_reconciliation にして汎用メッセージのAPIErrorを返す。
func (r *Registrar) Register(ctx context.Context, form validation.SignupForm) (*Result, error) {
	creds := form.Credentials()
	role := form.Role()
	now := r.now()

	attempt := &model.RegistrationAttempt{
		ID:        r.newID(),
		Email:     creds.Email,
		Role:      role,
		Status:    model.RegistrationStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.journal.Create(ctx, attempt); err != nil {
		// ジャーナルが書けなくても登録自体は続ける
		slog.Warn("failed to journal registration attempt",
			slog.String("role", string(role)),
			slog.String("error", err.Error()),
		)
	}

	signUp, err := r.auth.SignUp(ctx, creds.Email, creds.Password, r.metadata(form))
	if err != nil {
		r.record(ctx, attempt, model.RegistrationFailed, "signup", err)
		r.metrics.RecordRegistration(string(role), metrics.OutcomeProviderError)
		return nil, providerError(err)
	}
	attempt.AccountID = signUp.Account.ID
	r.record(ctx, attempt, model.RegistrationAccountCreated, "", nil)

	provider, ok := form.(validation.ServiceProviderSignup)
	if ok {
		if step, err := r.uploadDocuments(ctx, signUp, provider); err != nil {
			return nil, r.reconcile(ctx, attempt, step, err)
		}
		r.record(ctx, attempt, model.RegistrationDocumentsUploaded, "", nil)

		profile := r.businessProfile(signUp.Account.ID, provider)
		if err := r.auth.InsertBusinessProfile(ctx, profile, signUp.AccessToken); err != nil {
			return nil, r.reconcile(ctx, attempt, "business_profile", err)
		}
	}

	r.record(ctx, attempt, model.RegistrationCompleted, "", nil)
	r.metrics.RecordRegistration(string(role), metrics.OutcomeSuccess)

	slog.Info("registration completed",
		slog.String("account_id", signUp.Account.ID),
		slog.String("role", string(role)),
	)
	return &Result{Account: signUp.Account, VerificationRequired: signUp.AccessToken == ""}, nil
}

// uploadDocuments は必須書類を並行してアップロードし、全件の完了を待つ。
// 1件が失敗しても他のアップロードは中断しない。
// 失敗した場合は最初に失敗した手順名を返す。
func (r *Registrar) uploadDocuments(ctx context.Context, signUp *auth.SignUpResult, form validation.ServiceProviderSignup) (string, error) {
	kinds := model.RequiredDocuments()
	failed := make([]error, len(kinds))

	var g errgroup.Group
	for i, kind := range kinds {
		upload := form.Documents[kind]
		g.Go(func() error {
			err := r.auth.UploadDocument(ctx, signUp.Account.ID, kind, upload, signUp.AccessToken)
			r.metrics.RecordDocumentUpload(string(kind), err == nil)
			if err != nil {
				failed[i] = err
				return fmt.Errorf("upload %s: %w", kind, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for i, kind := range kinds {
			if failed[i] != nil {
				return "upload:" + string(kind), failed[i]
			}
		}
		return "upload", err
	}
	return "", nil
}

// metadata はプロバイダーのuser_metadataに保存する内容を組み立てる。
func (r *Registrar) metadata(form validation.SignupForm) model.AccountMetadata {
	creds := form.Credentials()
	md := model.AccountMetadata{
		FirstName: r.sanitizer.Sanitize(creds.FirstName),
		LastName:  r.sanitizer.Sanitize(creds.LastName),
		Role:      string(form.Role()),
	}
	if provider, ok := form.(validation.ServiceProviderSignup); ok {
		md.Sex = provider.Sex
		md.BusinessName = r.sanitizer.Sanitize(provider.Business.Name)
		md.BusinessAddress = r.sanitizer.Sanitize(provider.Business.Address)
		md.BusinessPhone = r.sanitizer.Sanitize(provider.Business.Phone)
		md.BusinessEmail = provider.Business.Email
		md.BusinessDescription = r.sanitizer.Sanitize(provider.Business.Description)
	}
	return md
}

func (r *Registrar) businessProfile(accountID string, form validation.ServiceProviderSignup) *model.BusinessProfile {
	return &model.BusinessProfile{
		AccountID:   accountID,
		Role:        model.RoleServiceProvider,
		Name:        r.sanitizer.Sanitize(form.Business.Name),
		Address:     r.sanitizer.Sanitize(form.Business.Address),
		Phone:       r.sanitizer.Sanitize(form.Business.Phone),
		Email:       form.Business.Email,
		Description: r.sanitizer.Sanitize(form.Business.Description),
	}
}

// reconcile はアカウント作成後の失敗を記録し、利用者向けの汎用エラーを返す。
func (r *Registrar) reconcile(ctx context.Context, attempt *model.RegistrationAttempt, step string, err error) error {
	r.record(ctx, attempt, model.RegistrationNeedsReconciliation, step, err)
	r.metrics.RecordRegistration(string(attempt.Role), metrics.OutcomeNeedsReconcile)

	slog.Error("registration left account without profile",
		slog.String("attempt_id", attempt.ID),
		slog.String("account_id", attempt.AccountID),
		slog.String("failed_step", step),
		slog.String("error", err.Error()),
	)
	return model.NewRegistrationFailedError()
}

// record はジャーナルの状態を更新する。更新の失敗は警告ログのみ。
func (r *Registrar) record(ctx context.Context, attempt *model.RegistrationAttempt, status model.RegistrationStatus, step string, cause error) {
	attempt.Status = status
	attempt.FailedStep = step
	attempt.ErrorMessage = ""
	if cause != nil {
		attempt.ErrorMessage = cause.Error()
	}
	attempt.UpdatedAt = r.now()

	if err := r.journal.UpdateStatus(ctx, attempt); err != nil {
		slog.Warn("failed to update registration journal",
			slog.String("attempt_id", attempt.ID),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}
}

// providerError はアカウント作成の失敗を利用者向けエラーに変換する。
// プロバイダーのメッセージはそのまま表示する。
func providerError(err error) error {
	var perr *supabase.Error
	if errors.As(err, &perr) {
		return model.NewProviderError(perr.Message)
	}
	slog.Error("sign up request failed", slog.String("error", err.Error()))
	return model.NewProviderError("")
}
