package site

import "github.com/pawrest/pawrest/internal/model"

// Dashboard はロール別ダッシュボードの表示内容。
type Dashboard struct {
	Role     model.Role
	Title    string
	Greeting string
	Lead     string

	// 以下は管理者のみ。登録途中で失敗し確認が必要な試行。
	PendingReconciliation int
	Attempts              []*model.RegistrationAttempt
	// JournalUnavailable はジャーナルを読めなかったことを示す。件数と一覧は表示しない。
	JournalUnavailable bool
}

// AdminDashboardUnavailable はジャーナルを読めなかった場合の管理者ダッシュボードを返す。
func AdminDashboardUnavailable() *Dashboard {
	d := AdminDashboard(0, nil)
	d.JournalUnavailable = true
	return d
}

// AdminDashboard は管理者ダッシュボードの表示内容を返す。
func AdminDashboard(pending int, attempts []*model.RegistrationAttempt) *Dashboard {
	return &Dashboard{
		Role:                  model.RoleAdmin,
		Title:                 "Admin Dashboard",
		Greeting:              "Welcome, Admin",
		Lead:                  "Manage your platform and users here.",
		PendingReconciliation: pending,
		Attempts:              attempts,
	}
}

// FurParentDashboard はペットオーナーのダッシュボードの表示内容を返す。
func FurParentDashboard(account *model.Account) *Dashboard {
	return &Dashboard{
		Role:     model.RoleFurParent,
		Title:    "Fur Parent Dashboard",
		Greeting: "Welcome, " + account.Metadata.FirstName + "!",
	}
}

// ServiceProviderDashboard は事業者ダッシュボードの表示内容を返す。
// 見出しは事業名、なければ名を使う。
func ServiceProviderDashboard(account *model.Account) *Dashboard {
	return &Dashboard{
		Role:     model.RoleServiceProvider,
		Title:    "Service Provider Dashboard",
		Greeting: "Welcome, " + account.DisplayName(),
		Lead:     "Manage your services and appointments here.",
	}
}
