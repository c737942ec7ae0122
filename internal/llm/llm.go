package llm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrUnknownProvider = errors.New("unknown llm provider")

var invalidNamePattern = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func New(cfg Config) (LLM, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		return newOpenAI(cfg)
	case "azure":
		return newAzure(cfg)
	case "claude":
		return newClaude(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// sanitizeName maps ids and names onto the ^[a-zA-Z0-9_-]+$ shape both
// providers require.
func sanitizeName(value string) string {
	return invalidNamePattern.ReplaceAllString(value, "_")
}
