package tools

import (
	"os"
	"regexp"
	"strings"
)

// RedactEnv names the environment variable holding extra redaction
// patterns, separated by commas or semicolons. Entries that compile as
// regular expressions are used as such, others are masked literally.
const RedactEnv = "OPTSPIPE_REDACT"

const redactedMark = "***REDACTED***"

// secretNameHints mark passthrough variables whose values are masked in
// audit lines.
var secretNameHints = []string{"KEY", "TOKEN", "SECRET", "PASSWORD"}

type redactionPatterns struct {
	regexps  []*regexp.Regexp
	literals []string
}

func (p redactionPatterns) apply(s string) string {
	if s == "" {
		return s
	}
	for _, rx := range p.regexps {
		s = rx.ReplaceAllString(s, redactedMark)
	}
	for _, lit := range p.literals {
		if lit == "" {
			continue
		}
		s = strings.ReplaceAll(s, lit, redactedMark)
	}
	return s
}

func (p redactionPatterns) applyAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = p.apply(v)
	}
	return out
}

// gatherRedactionPatterns builds patterns from RedactEnv and from the values
// of passed-through variables that look like secrets.
func gatherRedactionPatterns(envKeys []string) redactionPatterns {
	var pats redactionPatterns
	if cfg := os.Getenv(RedactEnv); cfg != "" {
		fields := strings.FieldsFunc(cfg, func(r rune) bool { return r == ',' || r == ';' })
		for _, f := range fields {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			if rx, err := regexp.Compile(f); err == nil {
				pats.regexps = append(pats.regexps, rx)
			} else {
				pats.literals = append(pats.literals, f)
			}
		}
	}
	for _, key := range envKeys {
		if !looksSecret(key) {
			continue
		}
		if v := os.Getenv(key); v != "" {
			pats.literals = append(pats.literals, v)
		}
	}
	return pats
}

func looksSecret(name string) bool {
	for _, h := range secretNameHints {
		if strings.Contains(name, h) {
			return true
		}
	}
	return false
}
