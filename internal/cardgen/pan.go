package cardgen

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// NumberLength is the fixed length of an ABEBA card number.
const NumberLength = 16

// BrandPrefix identifies the ABEBA card scheme. Every card number starts with it.
const BrandPrefix = "4444"

// GenerateNumber generates a card number of NumberLength digits starting with
// prefix; the last digit is the Luhn check digit, so the result always passes
// ValidateNumber for the same prefix.
func GenerateNumber(prefix string) (string, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return "", err
	}

	fill := NumberLength - 1 - len(prefix)
	digits, err := RandomDigits(fill)
	if err != nil {
		return "", fmt.Errorf("rand: %w", err)
	}

	body := prefix + digits
	return body + luhnCheckDigit(body), nil
}

// GenerateUniqueNumber generates numbers until exists reports the candidate as
// unused, up to maxRetries attempts. exists is typically backed by the card store.
func GenerateUniqueNumber(prefix string, maxRetries int, exists func(string) (bool, error)) (string, error) {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	for i := 0; i <= maxRetries; i++ {
		number, err := GenerateNumber(prefix)
		if err != nil {
			return "", err
		}
		if exists == nil {
			return number, nil
		}
		used, err := exists(number)
		if err != nil {
			return "", fmt.Errorf("exists callback: %w", err)
		}
		if !used {
			return number, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique card number after %d retries", maxRetries)
}

// GenerateCVV returns 3 random decimal digits.
func GenerateCVV() (string, error) {
	return RandomDigits(3)
}

// ValidateNumber reports whether number is a well-formed card number for the
// given brand prefix: after stripping separators it must be exactly
// NumberLength digits, start with prefix, and pass the Luhn checksum over all
// digits.
func ValidateNumber(number, prefix string) bool {
	cleaned := Normalize(number)
	if len(cleaned) != NumberLength || !IsDigits(cleaned) {
		return false
	}
	if !strings.HasPrefix(cleaned, prefix) {
		return false
	}
	return luhnValid(cleaned)
}

// ValidateCVV reports whether cvv is exactly 3 ASCII digits.
func ValidateCVV(cvv string) bool {
	return len(cvv) == 3 && IsDigits(cvv)
}

// ValidatePrefix checks the brand prefix shape: digits only, short enough to
// leave room for random digits plus the check digit.
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("prefix is required")
	}
	if !IsDigits(prefix) {
		return fmt.Errorf("prefix must contain digits only")
	}
	if len(prefix) > NumberLength-2 {
		return fmt.Errorf("prefix too long: %s", prefix)
	}
	return nil
}

// RandomDigits generates count digit characters using rejection sampling to
// avoid modulo bias: only bytes < 250 are accepted before reduction mod 10.
func RandomDigits(count int) (string, error) {
	if count <= 0 {
		return "", nil
	}
	const threshold = 250 // 256 - (256 % 10)
	var sb strings.Builder
	sb.Grow(count)
	buf := make([]byte, 64)
	for sb.Len() < count {
		n, err := rand.Read(buf)
		if err != nil {
			return "", err
		}
		for i := 0; i < n && sb.Len() < count; i++ {
			b := buf[i]
			if b < threshold {
				sb.WriteByte('0' + (b % 10))
			}
		}
	}
	return sb.String(), nil
}

func luhnCheckDigit(body string) string {
	sum, dbl := 0, true
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if dbl {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		dbl = !dbl
	}
	cd := (10 - (sum % 10)) % 10
	return string('0' + byte(cd))
}

// luhnValid runs the Luhn checksum over a full number including its check
// digit: doubling alternate digits from the right, folding products > 9, valid
// iff the total is divisible by 10.
func luhnValid(number string) bool {
	sum, dbl := 0, false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if dbl {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		dbl = !dbl
	}
	return sum%10 == 0
}

func IsDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Normalize strips spaces, tabs and dashes, returning bare digits as stored.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-':
			return -1
		default:
			return r
		}
	}, s)
}

// Format renders a normalized number in display form, grouped by four:
// "4444 1111 2222 3333".
func Format(number string) string {
	cleaned := Normalize(number)
	var groups []string
	for len(cleaned) > 4 {
		groups = append(groups, cleaned[:4])
		cleaned = cleaned[4:]
	}
	groups = append(groups, cleaned)
	return strings.Join(groups, " ")
}

func LastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Mask hides all but the leading brand digits and trailing four.
func Mask(number string) string {
	cleaned := Normalize(number)
	n := len(cleaned)
	if n == 0 {
		return ""
	}
	if n <= 4 {
		return strings.Repeat("*", n)
	}
	if n < 10 {
		return strings.Repeat("*", n-4) + cleaned[n-4:]
	}
	return cleaned[:4] + strings.Repeat("*", n-8) + cleaned[n-4:]
}
