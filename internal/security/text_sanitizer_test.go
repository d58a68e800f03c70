package security

import (
	"strings"
	"testing"
)

func TestTextSanitizer_Sanitize(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "Rainbow Bridge Care", "Rainbow Bridge Care"},
		{"前後の空白を除去", "  Rainbow Bridge  ", "Rainbow Bridge"},
		{"タグを除去", "<b>Rainbow</b> Bridge", "Rainbow Bridge"},
		{"scriptは中身ごと除去", `Paws<script>alert("x")</script>`, "Paws"},
		{"アンパサンドは元に戻す", "Cats & Dogs Memorial", "Cats & Dogs Memorial"},
		{"空文字列", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTextSanitizer_RemovesEventAttributes(t *testing.T) {
	sanitizer := NewTextSanitizer()

	got := sanitizer.Sanitize(`<img src=x onerror="alert(1)">Pet Haven`)
	if strings.Contains(got, "onerror") || strings.Contains(got, "<img") {
		t.Errorf("Sanitize left markup behind: %q", got)
	}
	if got != "Pet Haven" {
		t.Errorf("Sanitize() = %q, want %q", got, "Pet Haven")
	}
}

func TestTextSanitizer_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()

	input := "<p>Home services &amp; ceremonies</p>"
	first := sanitizer.Sanitize(input)
	if second := sanitizer.Sanitize(first); second != first {
		t.Errorf("Sanitize is not idempotent: %q then %q", first, second)
	}
}
