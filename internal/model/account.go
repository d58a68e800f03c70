// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Role はアカウントのロールを表す。admin, furParent, serviceProvider の閉じた集合。
type Role string

const (
	// RoleAdmin はプラットフォーム管理者。
	RoleAdmin Role = "admin"
	// RoleFurParent はメモリアルサービスを探すペットオーナー。
	RoleFurParent Role = "furParent"
	// RoleServiceProvider は書類審査を受けるメモリアルサービス事業者。
	RoleServiceProvider Role = "serviceProvider"
)

// ParseRole は文字列をRoleに変換する。
// 大文字小文字と "_" "-" を無視するため、"service_provider" も serviceProvider になる。
// 未知の値の場合はfalseを返す。
func ParseRole(s string) (Role, bool) {
	normalized := strings.ToLower(s)
	normalized = strings.ReplaceAll(normalized, "_", "")
	normalized = strings.ReplaceAll(normalized, "-", "")

	switch strings.TrimSpace(normalized) {
	case "admin":
		return RoleAdmin, true
	case "furparent":
		return RoleFurParent, true
	case "serviceprovider":
		return RoleServiceProvider, true
	default:
		return "", false
	}
}

// DashboardPath はロールに対応するダッシュボードのパスを返す。
// 未知のロールはトップページ "/" になる。
func (r Role) DashboardPath() string {
	switch r {
	case RoleAdmin:
		return "/dashboard/admin"
	case RoleFurParent:
		return "/dashboard/fur-parent"
	case RoleServiceProvider:
		return "/dashboard/service-provider"
	default:
		return "/"
	}
}

// Account は外部プロバイダーが管理するアイデンティティを表す。
// このアプリケーションからは作成のみ行い、削除はしない。
type Account struct {
	ID       string
	Email    string
	Metadata AccountMetadata
}

// AccountMetadata はプロバイダーのuser_metadataに保存されるプロフィール情報。
type AccountMetadata struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role,omitempty"`
	Sex       string `json:"sex,omitempty"`

	BusinessName        string `json:"business_name,omitempty"`
	BusinessAddress     string `json:"business_address,omitempty"`
	BusinessPhone       string `json:"business_phone,omitempty"`
	BusinessEmail       string `json:"business_email,omitempty"`
	BusinessDescription string `json:"business_description,omitempty"`
}

// Role はメタデータのロールを解釈して返す。未設定または未知の値の場合はfalse。
func (a *Account) Role() (Role, bool) {
	if a == nil {
		return "", false
	}
	return ParseRole(a.Metadata.Role)
}

// DisplayName はダッシュボードの見出しに使う名前を返す。
// 事業者は事業名を優先し、なければ名を使う。
func (a *Account) DisplayName() string {
	if a == nil {
		return ""
	}
	if role, _ := a.Role(); role == RoleServiceProvider && a.Metadata.BusinessName != "" {
		return a.Metadata.BusinessName
	}
	return a.Metadata.FirstName
}

// Session はブラウザセッションを表す。
// 実体はプロバイダーのセッションで、ローカルにはそのトークンのみを保持する。
type Session struct {
	ID           string
	AccountID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// Expired は指定時刻においてセッションが期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// BusinessProfile はbusinessesテーブルの1行を表す。
type BusinessProfile struct {
	AccountID   string `json:"user_id"`
	Role        Role   `json:"role"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Description string `json:"description"`
}
