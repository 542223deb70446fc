package patient

import (
	"strings"

	"github.com/ttacon/libphonenumber"
)

// NormalizeContact formats raw as E.164 when it parses as a valid number for
// region. Anything else is returned trimmed.
func NormalizeContact(raw, region string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	num, err := libphonenumber.Parse(s, region)
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return s
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}
