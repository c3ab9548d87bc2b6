package logger

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// Keys whose whole value is an address.
var addressKeys = []string{"email", "recipient", "reply_to"}

// redactField masks addresses in a log value. Address-like keys are masked
// whole; other values have embedded addresses masked in place.
func redactField(key, val string) string {
	key = strings.ToLower(key)
	for _, k := range addressKeys {
		if strings.Contains(key, k) {
			return RedactEmail(val)
		}
	}
	return emailPattern.ReplaceAllStringFunc(val, RedactEmail)
}

// RedactEmail keeps the first two characters of the local part and the
// domain: "ana.silva@clinic.example" becomes "an***@clinic.example". Local
// parts of two characters or fewer are masked entirely.
func RedactEmail(addr string) string {
	at := strings.IndexByte(addr, '@')
	if at < 0 || at != strings.LastIndexByte(addr, '@') || at == len(addr)-1 {
		return "***@***"
	}
	local, domain := addr[:at], addr[at+1:]
	if len(local) <= 2 {
		return "***@" + domain
	}
	return local[:2] + "***@" + domain
}
