package contact

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		cc   string
		want string
		err  bool
	}{
		{"already e164", "+15551234567", "1", "+15551234567", false},
		{"e164 non-us", "+447946095812", "1", "+447946095812", false},
		{"ten digits", "5551234567", "1", "+15551234567", false},
		{"ten digits formatted", "(555) 123-4567", "1", "+15551234567", false},
		{"ten digits other cc", "9876543210", "91", "+919876543210", false},
		{"cc with plus", "9876543210", "+91", "+919876543210", false},
		{"eleven with leading one", "1-555-123-4567", "44", "+15551234567", false},
		{"eleven without leading one", "25551234567", "1", "", true},
		{"too short", "12345", "1", "", true},
		{"empty", "", "1", "", true},
		{"letters", "call me", "1", "", true},
		{"plus zero", "+05551234567", "1", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizePhone(tc.raw, tc.cc)
			if tc.err {
				if !errors.Is(err, ErrInvalidPhone) {
					t.Fatalf("NormalizePhone(%q) err = %v, want ErrInvalidPhone", tc.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizePhone(%q): %v", tc.raw, err)
			}
			if got != tc.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestNormalizePhone_AlwaysE164(t *testing.T) {
	re := regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		ten := fmt.Sprintf("%010d", r.Int63n(1e10))
		got, err := NormalizePhone(ten, "1")
		if err != nil || !re.MatchString(got) {
			t.Fatalf("NormalizePhone(%q) = %q, %v", ten, got, err)
		}
		eleven := "1" + ten
		got, err = NormalizePhone(eleven, "1")
		if err != nil || !re.MatchString(got) {
			t.Fatalf("NormalizePhone(%q) = %q, %v", eleven, got, err)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	got, err := NormalizeEmail("  Ada@Acme.COM ")
	if err != nil || got != "ada@acme.com" {
		t.Fatalf("NormalizeEmail = %q, %v", got, err)
	}
	for _, bad := range []string{"", "ada", "ada@", "@acme.com", "ada@acme"} {
		if _, err := NormalizeEmail(bad); !errors.Is(err, ErrInvalidEmail) {
			t.Errorf("NormalizeEmail(%q) err = %v, want ErrInvalidEmail", bad, err)
		}
	}
}

func TestMasking(t *testing.T) {
	if got := MaskPhone("+15551234567"); got != "+*******4567" {
		t.Errorf("MaskPhone = %q", got)
	}
	if got := MaskPhone("123"); got != "***" {
		t.Errorf("MaskPhone short = %q", got)
	}
	if got := MaskEmail("ada@acme.com"); got != "a***@acme.com" {
		t.Errorf("MaskEmail = %q", got)
	}
	if got := MaskEmail("bogus"); got != "***" {
		t.Errorf("MaskEmail bogus = %q", got)
	}
}
