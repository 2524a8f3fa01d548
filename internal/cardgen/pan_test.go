package cardgen

import (
	"strings"
	"testing"
)

func TestGenerateNumber_RoundTrip(t *testing.T) {
	for i := 0; i < 100; i++ {
		number, err := GenerateNumber(BrandPrefix)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if len(number) != NumberLength {
			t.Fatalf("length = %d want %d (%q)", len(number), NumberLength, number)
		}
		if !strings.HasPrefix(number, BrandPrefix) {
			t.Fatalf("number %q does not start with %q", number, BrandPrefix)
		}
		if !ValidateNumber(number, BrandPrefix) {
			t.Fatalf("generated number %q rejected by validator", number)
		}
	}
}

func TestValidateNumber(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"4444111122223333", true},        // luhn-valid with brand prefix
		{"4444 1111 2222 3333", true},     // display form with separators
		{"4444-1111-2222-3333", true},     // dashed separators
		{"4444111122223334", false},       // luhn failure
		{"4111111111111111", false},       // luhn-valid but wrong prefix
		{"444411112222333", false},        // 15 digits
		{"44441111222233334", false},      // 17 digits
		{"4444a11122223333", false},       // non-digit
		{"", false},
	}
	for _, c := range cases {
		if got := ValidateNumber(c.in, BrandPrefix); got != c.want {
			t.Fatalf("ValidateNumber(%q) = %v want %v", c.in, got, c.want)
		}
	}
}

func TestValidateCVV(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"123", true},
		{"000", true},
		{"12", false},
		{"1234", false},
		{"12a", false},
		{"", false},
	}
	for _, c := range cases {
		if got := ValidateCVV(c.in); got != c.want {
			t.Fatalf("ValidateCVV(%q) = %v want %v", c.in, got, c.want)
		}
	}
}

func TestGenerateUniqueNumber_RetriesOnCollision(t *testing.T) {
	calls := 0
	exists := func(string) (bool, error) {
		calls++
		return calls == 1, nil // first candidate is taken
	}
	number, err := GenerateUniqueNumber(BrandPrefix, 5, exists)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if calls != 2 {
		t.Fatalf("exists called %d times, want 2", calls)
	}
	if !ValidateNumber(number, BrandPrefix) {
		t.Fatalf("number %q rejected by validator", number)
	}
}

func TestGenerateUniqueNumber_GivesUp(t *testing.T) {
	exists := func(string) (bool, error) { return true, nil }
	if _, err := GenerateUniqueNumber(BrandPrefix, 3, exists); err == nil {
		t.Fatal("expected error when every candidate collides")
	}
}

func TestGenerateCVV(t *testing.T) {
	cvv, err := GenerateCVV()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !ValidateCVV(cvv) {
		t.Fatalf("generated cvv %q rejected by validator", cvv)
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in  string
		out string
	}{
		{"4444 1111 2222 3333", "4444111122223333"},
		{" 4444-1111-2222-3333 ", "4444111122223333"},
		{"4444111122223333", "4444111122223333"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.out {
			t.Fatalf("Normalize(%q) = %q want %q", c.in, got, c.out)
		}
	}
}

func TestFormat(t *testing.T) {
	if got := Format("4444111122223333"); got != "4444 1111 2222 3333" {
		t.Fatalf("Format = %q", got)
	}
}

func TestMask(t *testing.T) {
	cases := []struct {
		in  string
		out string
	}{
		{"4444111122223333", "4444********3333"},
		{"4444 1111 2222 3333", "4444********3333"},
		{"333", "***"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Mask(c.in); got != c.out {
			t.Fatalf("Mask(%q) = %q want %q", c.in, got, c.out)
		}
	}
}
