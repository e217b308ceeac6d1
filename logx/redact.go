package logx

import (
	"sort"
	"strings"
	"sync"
)

const redactedMark = "[REDACTED]"

// minSecretLen keeps short values like "1" or "ok" from blanking out
// unrelated text.
const minSecretLen = 6

var secrets = struct {
	sync.RWMutex
	values   map[string]struct{}
	replacer *strings.Replacer
}{values: make(map[string]struct{})}

// RegisterSecret marks values that must never appear in log output. Every
// rendered line is scrubbed before it is written.
func RegisterSecret(values ...string) {
	secrets.Lock()
	defer secrets.Unlock()

	for _, v := range values {
		if len(v) >= minSecretLen {
			secrets.values[v] = struct{}{}
		}
	}

	// Longest first so a secret containing another is masked whole.
	ordered := make([]string, 0, len(secrets.values))
	for v := range secrets.values {
		ordered = append(ordered, v)
	}
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	pairs := make([]string, 0, len(ordered)*2)
	for _, v := range ordered {
		pairs = append(pairs, v, redactedMark)
	}
	secrets.replacer = strings.NewReplacer(pairs...)
}

// ResetSecrets forgets all registered secrets.
func ResetSecrets() {
	secrets.Lock()
	defer secrets.Unlock()
	secrets.values = make(map[string]struct{})
	secrets.replacer = nil
}

// Redact masks every registered secret in s.
func Redact(s string) string {
	secrets.RLock()
	r := secrets.replacer
	secrets.RUnlock()

	if r == nil {
		return s
	}
	return r.Replace(s)
}
