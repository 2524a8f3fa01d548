package expiry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultValidityYears is how far in the future newly issued cards expire.
const DefaultValidityYears = 5

// CardFace returns the expiry as MM/YY for a card issued at issue, valid for
// the given number of years.
func CardFace(issue time.Time, years int) string {
	if years <= 0 {
		years = DefaultValidityYears
	}
	y := (issue.Year() + years) % 100
	m := int(issue.Month())
	return fmt.Sprintf("%02d/%02d", m, y)
}

// Parse parses an MM/YY card face into month (1..12) and full year (2000+YY).
func Parse(mmYY string) (month, year int, err error) {
	s := strings.TrimSpace(mmYY)
	if len(s) != 5 || s[2] != '/' {
		return 0, 0, fmt.Errorf("expiry must be MM/YY")
	}
	mm, yy := s[:2], s[3:]
	for _, part := range []string{mm, yy} {
		for i := 0; i < len(part); i++ {
			if part[i] < '0' || part[i] > '9' {
				return 0, 0, fmt.Errorf("expiry must be digits: MM/YY")
			}
		}
	}
	month, _ = strconv.Atoi(mm)
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("expiry month must be 01..12")
	}
	y, _ := strconv.Atoi(yy)
	return month, 2000 + y, nil
}

// Valid reports whether mmYY parses and names a month strictly after the month
// of at. A card expiring in the current month is already invalid.
func Valid(mmYY string, at time.Time) bool {
	month, year, err := Parse(mmYY)
	if err != nil {
		return false
	}
	if year != at.Year() {
		return year > at.Year()
	}
	return month > int(at.Month())
}

// YYMM converts an MM/YY card face into the YYMM form used on the wire (ISO
// 8583 DE14).
func YYMM(mmYY string) (string, error) {
	month, year, err := Parse(mmYY)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d%02d", year%100, month), nil
}

// FromYYMM converts a YYMM wire value back to the MM/YY card face.
func FromYYMM(yymm string) (string, error) {
	if len(yymm) != 4 {
		return "", fmt.Errorf("expiry must be YYMM (4 digits)")
	}
	for i := 0; i < 4; i++ {
		if yymm[i] < '0' || yymm[i] > '9' {
			return "", fmt.Errorf("expiry must be digits: YYMM")
		}
	}
	mm, _ := strconv.Atoi(yymm[2:])
	if mm < 1 || mm > 12 {
		return "", fmt.Errorf("expiry month must be 01..12")
	}
	return yymm[2:] + "/" + yymm[:2], nil
}
