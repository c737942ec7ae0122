package connection

import (
	"errors"
	"regexp"
	"strings"
)

var ErrEmptyDSN = errors.New("database dsn is required")

var (
	rePassword = regexp.MustCompile(`(?i)(password=)([^\s;&]+)`)
	reDSNPass  = regexp.MustCompile(`(?i)(://)([^:/@]+):([^@]+)(@)`)
	reToken    = regexp.MustCompile(`(?i)(token=|bearer\s+)([A-Za-z0-9._-]+)`)
	reAPIKey   = regexp.MustCompile(`(?i)(apikey=|api_key=|api-key:\s*)([^\s;&]+)`)
)

// Mask hides credentials in connection strings and header-like text so the
// result is safe to log.
func Mask(s string) string {
	out := rePassword.ReplaceAllString(s, "${1}***")
	out = reDSNPass.ReplaceAllString(out, "${1}${2}:***${4}")
	out = reToken.ReplaceAllString(out, "${1}***")
	out = reAPIKey.ReplaceAllString(out, "${1}***")
	return out
}

func isBlank(dsn string) bool {
	return strings.TrimSpace(dsn) == ""
}
