package logutil

import "strings"

// SanitizeForLog strips newlines and other control characters from strings
// that originate outside the process (remote hostnames, job names, scanned
// file paths) before they reach log.Printf, so a crafted value can't forge
// extra log lines.
func SanitizeForLog(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\t", " ")

	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r >= 32 || r == ' ' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
