package httpx

import "testing"

func TestSafeRedirect(t *testing.T) {
	const base = "https://auth.acme.test"
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"", "/", true},
		{"/expenses?tab=open", "/expenses?tab=open", true},
		{"https://auth.acme.test/home", "https://auth.acme.test/home", true},
		{"https://AUTH.acme.test/home", "https://AUTH.acme.test/home", true},
		{"//evil.test/home", "", false},
		{"/\\evil.test", "", false},
		{"https://evil.test/home", "", false},
		{"http://auth.acme.test/home", "", false},
		{"https://user@auth.acme.test/", "", false},
		{"javascript:alert(1)", "", false},
		{"home", "", false},
	}
	for _, tt := range tests {
		got, ok := SafeRedirect(tt.raw, base)
		if got != tt.want || ok != tt.ok {
			t.Errorf("SafeRedirect(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}
