package money

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
)

var ibanPattern = regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Z0-9]{4,30}$`)

// IBAN is a normalized, checksum-verified account number.
type IBAN string

// ParseIBAN normalizes (strips spaces and dashes, uppercases) and validates
// both the shape and the mod-97 checksum.
func ParseIBAN(value string) (IBAN, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(value, " ", ""), "-", ""))
	if normalized == "" {
		return "", fmt.Errorf("iban cannot be empty")
	}
	if !ibanPattern.MatchString(normalized) {
		return "", fmt.Errorf("invalid iban format: %q", value)
	}
	if mod97(normalized[4:]+normalized[:4]) != 1 {
		return "", fmt.Errorf("invalid iban checksum: %q", value)
	}
	return IBAN(normalized), nil
}

// GenerateIBAN produces a random valid IBAN for the given country. Account
// number shape follows the country's convention for the countries we seed.
func GenerateIBAN(countryCode string) (IBAN, error) {
	countryCode = strings.ToUpper(strings.TrimSpace(countryCode))
	if len(countryCode) != 2 {
		return "", fmt.Errorf("country code must be exactly 2 letters: %q", countryCode)
	}

	var accountNumber string
	switch countryCode {
	case "TR":
		accountNumber = randomDigits(5) + "0" + randomDigits(16)
	case "DE":
		accountNumber = randomDigits(18)
	case "GB":
		accountNumber = randomAlphanumeric(4) + randomDigits(14)
	default:
		accountNumber = randomDigits(20)
	}

	checkDigits := 98 - mod97(accountNumber+countryCode+"00")
	return ParseIBAN(fmt.Sprintf("%s%02d%s", countryCode, checkDigits, accountNumber))
}

func (i IBAN) String() string {
	return string(i)
}

// mod97 computes the ISO 7064 remainder over the rearranged IBAN string,
// expanding letters to their two-digit values (A=10 .. Z=35).
func mod97(s string) int {
	rem := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			rem = (rem*10 + int(r-'0')) % 97
		case r >= 'A' && r <= 'Z':
			v := int(r-'A') + 10
			rem = (rem*100 + v) % 97
		default:
			return -1
		}
	}
	return rem
}

func randomDigits(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		digits[i] = byte('0' + rand.Intn(10))
	}
	return string(digits)
}

func randomAlphanumeric(length int) string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		result[i] = chars[rand.Intn(len(chars))]
	}
	return string(result)
}
