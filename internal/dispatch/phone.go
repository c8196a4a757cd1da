package dispatch

import "strings"

const (
	countryCode = "55"
	chatSuffix  = "@s.whatsapp.net"
)

// NormalizePhone converts a free-form phone string into a WAHA chat
// identifier (e.g. "(11) 99999-8888" -> "5511999998888@s.whatsapp.net").
// Non-digits are stripped; the Brazilian country code is prepended when the
// number is short enough to be local and does not already carry it.
// Empty input yields empty output.
func NormalizePhone(raw string) string {
	if raw == "" {
		return ""
	}

	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	clean := digits.String()
	if clean == "" {
		return ""
	}

	if len(clean) <= 11 && !strings.HasPrefix(clean, countryCode) {
		clean = countryCode + clean
	}

	return clean + chatSuffix
}
