// Package contentx maps trigger keys to the ordered content a recipient
// receives. The registry is loaded once from YAML or JSON and never changes
// afterwards.
//
//	sequences:
//	  default:
//	    items:
//	      - type: text
//	        body: "Hi! Tap a button below to get started."
//	  UNLOCK_CONTENT:
//	    labels: ["Unlock Content"]
//	    keywords: ["unlock"]
//	    items:
//	      - type: image
//	        url: https://cdn.example.com/cover.jpg
//	        caption: "Here you go"
//	      - type: text
//	        body: "Enjoy!"
package contentx

import (
	"fmt"
	"net/http"

	"github.com/Abraxas-365/wabridge/errx"
	"github.com/Abraxas-365/wabridge/msgx"
)

// DefaultKey names the sequence used when nothing else matches
const DefaultKey = "default"

var (
	contentErrors = errx.NewRegistry("CONTENT")

	ErrInvalid = contentErrors.Register("INVALID", errx.TypeConfig, http.StatusInternalServerError, "Content configuration is invalid")
)

// IsInvalid reports a content load or validation failure
func IsInvalid(err error) bool { return errx.IsCode(err, ErrInvalid) }

// ItemType is the kind of message an item is sent as
type ItemType string

const (
	ItemText  ItemType = "text"
	ItemImage ItemType = "image"
)

// ContentItem is one message in a sequence
type ContentItem struct {
	Type    ItemType `yaml:"type" json:"type" validatex:"required,oneof=text image"`
	Body    string   `yaml:"body,omitempty" json:"body,omitempty" validatex:"max=4096"`
	URL     string   `yaml:"url,omitempty" json:"url,omitempty" validatex:"httpurl"`
	Caption string   `yaml:"caption,omitempty" json:"caption,omitempty" validatex:"max=1024"`
}

// Validate enforces the per-type required fields
func (i ContentItem) Validate() error {
	switch i.Type {
	case ItemText:
		if i.Body == "" {
			return fmt.Errorf("text item needs a body")
		}
		if i.URL != "" || i.Caption != "" {
			return fmt.Errorf("text item cannot carry url or caption")
		}
	case ItemImage:
		if i.URL == "" {
			return fmt.Errorf("image item needs a url")
		}
		if i.Body != "" {
			return fmt.Errorf("image item cannot carry a body; use caption")
		}
	}
	return nil
}

// Message converts the item to an outbound message for to
func (i ContentItem) Message(to string) msgx.Message {
	if i.Type == ItemImage {
		return msgx.NewImageMessage(to, i.URL, i.Caption)
	}
	return msgx.NewTextMessage(to, i.Body)
}

// ContentSequence is the resolved content for a trigger. Key is the
// sequence that matched, which is DefaultKey on fallback.
type ContentSequence struct {
	Key   string        `json:"key"`
	Items []ContentItem `json:"items"`
}

func (s ContentSequence) Len() int { return len(s.Items) }

// SequenceConfig is one entry of the configuration document
type SequenceConfig struct {
	// Labels are quick-reply button titles that WhatsApp may echo back as
	// plain text instead of a structured reply.
	Labels []string `yaml:"labels,omitempty" json:"labels,omitempty"`
	// Keywords are free-text triggers, matched case-insensitively.
	Keywords []string      `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Items    []ContentItem `yaml:"items" json:"items" validatex:"required,dive"`
}

// Document is the on-disk shape of the content configuration
type Document struct {
	Sequences map[string]SequenceConfig `yaml:"sequences" json:"sequences"`
}
