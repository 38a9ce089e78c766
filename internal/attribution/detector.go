// Package attribution picks the agent a memora-mcp session writes to when a
// tool call names none.
package attribution

import (
	"os"
	"os/exec"
	"strings"
	"sync"
	"unicode"
)

var (
	cachedName string
	once       sync.Once
)

// DefaultAgent returns the session's default agent id, or "" when none can
// be found. Checks in order: MEMORA_AGENT_ID env, MEMORA_USER env, git config
// user.name. The result is cached after the first call.
func DefaultAgent() string {
	once.Do(func() {
		cachedName = detect(os.Getenv, gitUserName)
	})
	return cachedName
}

func detect(getenv func(string) string, git func() string) string {
	if id := strings.TrimSpace(getenv("MEMORA_AGENT_ID")); id != "" {
		return id
	}
	if name := getenv("MEMORA_USER"); name != "" {
		return Slug(name)
	}
	return Slug(git())
}

// Slug lowercases name and joins its words with dashes, dropping anything
// that is not a letter, digit, dash or underscore.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
			dash = false
		case unicode.IsSpace(r) || r == '-' || r == '.':
			if b.Len() > 0 && !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// gitUserName runs `git config --get user.name`. Returns "" on any error.
func gitUserName() string {
	out, err := exec.Command("git", "config", "--get", "user.name").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
