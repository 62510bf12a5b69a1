package helper

import (
	"regexp"
	"strings"
)

// LocalNumberLength is the length of a national number without country code.
const LocalNumberLength = 8

var nonDigits = regexp.MustCompile(`[^\d]`)

// NormalizeNumber turns a raw recipient into digits only. A number written
// with a leading "+" is taken as international and only stripped. Otherwise
// an 8 digit local number that does not already start with countryCode gets
// countryCode prepended.
//
//	"+33 6 12 34 56 78" -> "33612345678"
//	"22 123 456"        -> "21622123456" (countryCode "216")
func NormalizeNumber(raw, countryCode string) string {
	trimmed := strings.TrimSpace(raw)
	cleaned := nonDigits.ReplaceAllString(trimmed, "")

	if strings.HasPrefix(trimmed, "+") {
		return cleaned
	}

	if len(cleaned) == LocalNumberLength && countryCode != "" && !strings.HasPrefix(cleaned, countryCode) {
		cleaned = countryCode + cleaned
	}
	return cleaned
}

// ExtractPhoneFromJID drops the device and server parts of a JID.
//
//	"21622123456:43@s.whatsapp.net" -> "21622123456"
func ExtractPhoneFromJID(jid string) string {
	beforeAt, _, _ := strings.Cut(jid, "@")
	user, _, _ := strings.Cut(beforeAt, ":")
	return user
}
