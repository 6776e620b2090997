package logger

import (
	"regexp"
	"strings"
)

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// RedactEmail masks the local part of a recipient address, keeping the
// first two characters and the domain so per-department mail routing stays
// debuggable:
//
//	"john.doe@example.com" -> "jo***@example.com"
//	"ab@example.com"       -> "***@example.com"
func RedactEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 || strings.Count(email, "@") != 1 {
		return "***@***"
	}
	local, domain := strings.TrimSpace(email[:at]), email[at+1:]
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}

// RedactText masks every address embedded in free text, such as a transport
// error that echoes the rejected recipient.
func RedactText(s string) string {
	return emailRegex.ReplaceAllStringFunc(s, RedactEmail)
}

// RedactPhone keeps only the last two digits of a phone number.
func RedactPhone(phone string) string {
	digits := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			digits = append(digits, phone[i])
		}
	}
	if len(digits) <= 2 {
		return "***"
	}
	return "***" + string(digits[len(digits)-2:])
}
