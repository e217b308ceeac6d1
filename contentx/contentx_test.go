package contentx

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Abraxas-365/wabridge/fsx/providers/fsxlocal"
	"github.com/Abraxas-365/wabridge/msgx"
)

const sampleYAML = `
sequences:
  default:
    items:
      - type: text
        body: "Hi! Tap a button to get started."
  UNLOCK_CONTENT:
    labels: ["Unlock Content"]
    keywords: ["unlock"]
    items:
      - type: image
        url: https://cdn.example.com/cover.jpg
        caption: "Chapter one"
      - type: text
        body: "Enjoy!"
  PRICING:
    keywords: ["price", "Plans"]
    items:
      - type: text
        body: "Plans start at 99."
`

func mustParse(t *testing.T) *Registry {
	t.Helper()
	reg, err := Parse("content.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return reg
}

// ---------------------------------------------------------------------------
// Resolve
// ---------------------------------------------------------------------------

func TestResolveOrder(t *testing.T) {
	reg := mustParse(t)

	tests := []struct {
		key      string
		expected string
	}{
		{"UNLOCK_CONTENT", "UNLOCK_CONTENT"},
		{"unlock_content", "UNLOCK_CONTENT"},
		{"Unlock Content", "UNLOCK_CONTENT"},
		{"  unlock   content ", "UNLOCK_CONTENT"},
		{"UNLOCK", "UNLOCK_CONTENT"},
		{"plans", "PRICING"},
		{"PRICE", "PRICING"},
		{"what is this", DefaultKey},
		{"", DefaultKey},
	}

	for _, tt := range tests {
		seq := reg.Resolve(tt.key)
		if seq.Key != tt.expected {
			t.Errorf("Resolve(%q): expected %s, got %s", tt.key, tt.expected, seq.Key)
		}
		if seq.Len() == 0 {
			t.Errorf("Resolve(%q): expected items, got none", tt.key)
		}
	}
}

func TestResolveKeepsOrderAndCopies(t *testing.T) {
	reg := mustParse(t)

	seq := reg.Resolve("UNLOCK_CONTENT")
	if seq.Len() != 2 || seq.Items[0].Type != ItemImage || seq.Items[1].Type != ItemText {
		t.Fatalf("unexpected sequence %+v", seq)
	}

	seq.Items[0].Caption = "mutated"
	if again := reg.Resolve("UNLOCK_CONTENT"); again.Items[0].Caption != "Chapter one" {
		t.Errorf("expected registry to be unaffected, got caption %q", again.Items[0].Caption)
	}
}

func TestMatchLabel(t *testing.T) {
	reg := mustParse(t)

	label, ok := reg.MatchLabel("unlock content")
	if !ok || label != "Unlock Content" {
		t.Errorf("expected canonical label, got %q, %v", label, ok)
	}
	if _, ok := reg.MatchLabel("unlock"); ok {
		t.Error("keywords must not count as quick-reply labels")
	}
	if !reg.Has("Unlock Content") || reg.Has("nothing") {
		t.Error("Has disagrees with Resolve")
	}
}

func TestItemMessage(t *testing.T) {
	img := ContentItem{Type: ItemImage, URL: "https://cdn.example.com/a.png", Caption: "A"}.Message("919765071249")
	if img.Type != msgx.MessageTypeImage || img.Content.Media.URL != "https://cdn.example.com/a.png" {
		t.Errorf("unexpected image message %+v", img)
	}
	txt := ContentItem{Type: ItemText, Body: "Hello"}.Message("919765071249")
	if txt.Type != msgx.MessageTypeText || txt.Content.Text.Body != "Hello" {
		t.Errorf("unexpected text message %+v", txt)
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func TestInvalidDocuments(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		problem string
	}{
		{
			name:    "no default",
			doc:     "sequences:\n  A:\n    items:\n      - {type: text, body: hi}\n",
			problem: `"default" is required`,
		},
		{
			name:    "empty default",
			doc:     "sequences:\n  default:\n    items: []\n",
			problem: `"default" is required`,
		},
		{
			name:    "unknown type",
			doc:     "sequences:\n  default:\n    items:\n      - {type: video, url: 'https://x.example.com/v.mp4'}\n",
			problem: "Items[0].Type",
		},
		{
			name:    "text without body",
			doc:     "sequences:\n  default:\n    items:\n      - {type: text}\n",
			problem: "needs a body",
		},
		{
			name:    "relative image url",
			doc:     "sequences:\n  default:\n    items:\n      - {type: image, url: /cover.jpg}\n",
			problem: "httpurl",
		},
		{
			name: "duplicate label",
			doc: "sequences:\n  default:\n    items:\n      - {type: text, body: hi}\n" +
				"  A:\n    labels: [Yes]\n    items:\n      - {type: text, body: a}\n" +
				"  B:\n    labels: [YES]\n    items:\n      - {type: text, body: b}\n",
			problem: "more than one sequence",
		},
		{
			name:    "unknown field",
			doc:     "sequences:\n  default:\n    itemz: []\n",
			problem: "itemz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("content.yaml", []byte(tt.doc))
			if !IsInvalid(err) {
				t.Fatalf("expected %s, got %v", ErrInvalid, err)
			}
			if !strings.Contains(err.Error(), tt.problem) {
				t.Errorf("expected error to mention %q, got %v", tt.problem, err)
			}
		})
	}
}

func TestParseJSON(t *testing.T) {
	doc := `{"sequences":{"default":{"items":[{"type":"text","body":"hi"}]}}}`
	reg, err := Parse("content.json", []byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Resolve("x").Items[0].Body != "hi" {
		t.Error("expected default body hi")
	}

	if _, err := Parse("content.toml", []byte(doc)); !IsInvalid(err) {
		t.Errorf("expected unsupported extension to fail, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func TestLoadFromFileSystem(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "content.yaml"), []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	lfs := fsxlocal.NewLocalFileSystem(dir)

	reg, err := Load(context.Background(), lfs, "content.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := reg.Keys(); len(got) != 3 {
		t.Errorf("expected 3 sequences, got %v", got)
	}

	if _, err := Load(context.Background(), lfs, "missing.yaml"); !IsInvalid(err) {
		t.Errorf("expected missing file to be %s, got %v", ErrInvalid, err)
	}
}
