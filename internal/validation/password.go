package validation

const minPasswordLength = 8

// passwordProblem はパスワードが満たしていない最初のルールのメッセージを返す。
// 全ルールを満たす場合は空文字を返す。
func passwordProblem(password string, requireSymbol bool) string {
	if len([]rune(password)) < minPasswordLength {
		return "Password must be at least 8 characters"
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			symbol = true
		}
	}

	switch {
	case !upper:
		return "Password must include at least one uppercase letter (A-Z)"
	case !lower:
		return "Password must include at least one lowercase letter (a-z)"
	case !digit:
		return "Password must include at least one number (0-9)"
	case requireSymbol && !symbol:
		return "Password must include at least one special character (!@#$%^&*)"
	}
	return ""
}
