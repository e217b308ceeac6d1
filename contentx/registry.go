package contentx

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Abraxas-365/wabridge/validatex"
)

// Registry resolves trigger keys to content. It is safe for concurrent use
// because nothing mutates it after New returns.
type Registry struct {
	sequences map[string]SequenceConfig
	labels    map[string]string // folded label -> canonical label
	aliases   map[string]string // folded label/keyword/key -> sequence key
}

// New validates doc and builds the lookup indexes
func New(doc Document) (*Registry, error) {
	var problems []string

	def, ok := doc.Sequences[DefaultKey]
	if !ok || len(def.Items) == 0 {
		problems = append(problems, fmt.Sprintf("sequence %q is required and must have items", DefaultKey))
	}

	r := &Registry{
		sequences: make(map[string]SequenceConfig, len(doc.Sequences)),
		labels:    make(map[string]string),
		aliases:   make(map[string]string),
	}

	keys := make([]string, 0, len(doc.Sequences))
	for k := range doc.Sequences {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		seq := doc.Sequences[key]
		if strings.TrimSpace(key) == "" {
			problems = append(problems, "sequence key cannot be blank")
			continue
		}
		if err := validatex.Validate(seq); err != nil {
			for _, f := range validatex.Fields(err) {
				problems = append(problems, fmt.Sprintf("%s.%s", key, f.String()))
			}
			continue
		}
		r.sequences[key] = copySequence(seq)

		if prev, dup := r.aliases[fold(key)]; dup && prev != key {
			problems = append(problems, fmt.Sprintf("%s: key collides with %q", key, prev))
		} else {
			r.aliases[fold(key)] = key
		}

		for _, label := range seq.Labels {
			f := fold(label)
			if f == "" {
				problems = append(problems, fmt.Sprintf("%s: blank label", key))
				continue
			}
			if _, dup := r.labels[f]; dup {
				problems = append(problems, fmt.Sprintf("%s: label %q is used by more than one sequence", key, label))
				continue
			}
			if prev, taken := r.aliases[f]; taken && prev != key {
				problems = append(problems, fmt.Sprintf("%s: label %q collides with sequence %q", key, label, prev))
				continue
			}
			r.labels[f] = strings.TrimSpace(label)
			r.aliases[f] = key
		}
	}

	// Keywords never override a key or label
	for _, key := range keys {
		for _, kw := range doc.Sequences[key].Keywords {
			f := fold(kw)
			if f == "" {
				continue
			}
			if prev, taken := r.aliases[f]; taken {
				if prev != key {
					problems = append(problems, fmt.Sprintf("%s: keyword %q already triggers %q", key, kw, prev))
				}
				continue
			}
			r.aliases[f] = key
		}
	}

	if len(problems) > 0 {
		return nil, contentErrors.NewWithMessage(ErrInvalid, "Content configuration is invalid: "+strings.Join(problems, "; ")).
			WithDetail("problems", problems)
	}
	return r, nil
}

// Resolve returns the sequence for key: an exact key match, then a
// case-insensitive label, keyword or key match, then the default sequence.
// The result is a copy and never empty.
func (r *Registry) Resolve(key string) ContentSequence {
	if seq, ok := r.sequences[key]; ok {
		return ContentSequence{Key: key, Items: copyItems(seq.Items)}
	}
	if target, ok := r.aliases[fold(key)]; ok {
		return ContentSequence{Key: target, Items: copyItems(r.sequences[target].Items)}
	}
	return ContentSequence{Key: DefaultKey, Items: copyItems(r.sequences[DefaultKey].Items)}
}

// Has reports whether key resolves without falling back to default
func (r *Registry) Has(key string) bool {
	if _, ok := r.sequences[key]; ok {
		return true
	}
	_, ok := r.aliases[fold(key)]
	return ok
}

// MatchLabel reports whether text is a known quick-reply label and returns
// its canonical spelling.
func (r *Registry) MatchLabel(text string) (string, bool) {
	label, ok := r.labels[fold(text)]
	return label, ok
}

// Keys returns every sequence key in sorted order
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.sequences))
	for k := range r.sequences {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Labels returns every canonical quick-reply label in sorted order
func (r *Registry) Labels() []string {
	out := make([]string, 0, len(r.labels))
	for _, l := range r.labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func fold(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func copyItems(items []ContentItem) []ContentItem {
	out := make([]ContentItem, len(items))
	copy(out, items)
	return out
}

func copySequence(s SequenceConfig) SequenceConfig {
	return SequenceConfig{
		Labels:   append([]string(nil), s.Labels...),
		Keywords: append([]string(nil), s.Keywords...),
		Items:    copyItems(s.Items),
	}
}
