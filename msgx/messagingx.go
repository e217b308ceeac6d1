package msgx

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// ========== Core Interfaces ==========

// Sender represents a messaging channel that can send messages
type Sender interface {
	// Send sends a message and returns the provider's message ID
	Send(ctx context.Context, message Message) (*Response, error)

	// GetProviderName returns the provider name
	GetProviderName() string
}

// Receiver turns raw webhook deliveries into inbound events
type Receiver interface {
	// VerifyWebhook authenticates a POST body against its headers
	VerifyWebhook(header http.Header, body []byte) error

	// ParseIncoming classifies a POST body. Events that fail to classify are
	// reported in the error slice without affecting their siblings.
	ParseIncoming(body []byte) ([]InboundEvent, []error)

	GetProviderName() string
}

// Provider represents a full-featured messaging channel (send + receive)
type Provider interface {
	Sender
	Receiver
}

// ========== Message Structures ==========

// Message represents an outbound message
type Message struct {
	To       string            `json:"to" validatex:"required"`
	Type     MessageType       `json:"type" validatex:"required,oneof=text image template"`
	Content  Content           `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// MessageType defines the type of message
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeTemplate MessageType = "template"
)

// Content holds the message content based on type
type Content struct {
	Text     *TextContent     `json:"text,omitempty"`
	Media    *MediaContent    `json:"media,omitempty"`
	Template *TemplateContent `json:"template,omitempty"`
}

// TextContent for text messages
type TextContent struct {
	Body       string `json:"body" validatex:"required,max=4096"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

// MediaContent for media messages
type MediaContent struct {
	URL     string `json:"url" validatex:"required,httpurl"`
	Caption string `json:"caption,omitempty" validatex:"max=1024"`
}

// TemplateContent for template messages. Components are passed through to
// the provider untouched and must match the approved template exactly.
type TemplateContent struct {
	Name       string              `json:"name" validatex:"required"`
	Language   string              `json:"language" validatex:"required"`
	Components []TemplateComponent `json:"components,omitempty"`
}

// TemplateComponent is one header/body/button block of a template send
type TemplateComponent struct {
	Type       string              `json:"type"`
	SubType    string              `json:"sub_type,omitempty"`
	Index      string              `json:"index,omitempty"`
	Parameters []TemplateParameter `json:"parameters,omitempty"`
}

// TemplateParameter is one positional value inside a component
type TemplateParameter struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Payload string         `json:"payload,omitempty"`
	Image   *TemplateMedia `json:"image,omitempty"`
}

// TemplateMedia references a header image by link
type TemplateMedia struct {
	Link string `json:"link"`
}

// NewTextMessage builds a text message
func NewTextMessage(to, body string) Message {
	return Message{To: to, Type: MessageTypeText, Content: Content{Text: &TextContent{Body: body}}}
}

// NewImageMessage builds an image message
func NewImageMessage(to, url, caption string) Message {
	return Message{To: to, Type: MessageTypeImage, Content: Content{Media: &MediaContent{URL: url, Caption: caption}}}
}

// NewTemplateMessage builds a template message
func NewTemplateMessage(to, name, language string, components []TemplateComponent) Message {
	return Message{To: to, Type: MessageTypeTemplate, Content: Content{Template: &TemplateContent{
		Name: name, Language: language, Components: components,
	}}}
}

// ========== Response Structures ==========

// Response represents the response from sending a message
type Response struct {
	MessageID string        `json:"message_id"`
	Provider  string        `json:"provider"`
	To        string        `json:"to"`
	Status    MessageStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Attempts  int           `json:"attempts,omitempty"`
}

// MessageStatus represents the delivery status reported by the channel
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// ========== Inbound Events ==========

// EventKind discriminates InboundEvent
type EventKind string

const (
	KindButtonClick     EventKind = "button_click"
	KindText            EventKind = "text"
	KindTemplateStatus  EventKind = "template_status"
	KindDeliveryReceipt EventKind = "delivery_receipt"
)

// InboundEvent is one classified webhook event. Which fields are set depends
// on Kind:
//
//	button_click      ButtonID, ButtonTitle, From, MessageID, Timestamp
//	text              Body, From, MessageID, Timestamp
//	template_status   TemplateName, Status, Reason
//	delivery_receipt  MessageID, Status, Recipient, Reason
type InboundEvent struct {
	Kind      EventKind `json:"kind"`
	From      string    `json:"from,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`

	ButtonID    string `json:"button_id,omitempty"`
	ButtonTitle string `json:"button_title,omitempty"`

	Body string `json:"body,omitempty"`

	TemplateName string `json:"template_name,omitempty"`
	Status       string `json:"status,omitempty"`
	Reason       string `json:"reason,omitempty"`

	// Recipient is the user a delivery receipt refers to
	Recipient string `json:"recipient,omitempty"`
}

// TriggerKey returns the content lookup key for user-originated events
func (e InboundEvent) TriggerKey() string {
	switch e.Kind {
	case KindButtonClick:
		return e.ButtonID
	case KindText:
		return strings.TrimSpace(e.Body)
	default:
		return ""
	}
}

// IsUserMessage reports whether the event was sent by an end user
func (e InboundEvent) IsUserMessage() bool {
	return e.Kind == KindButtonClick || e.Kind == KindText
}

// ========== Event Handling ==========

// EventHandler handles classified inbound events
type EventHandler interface {
	HandleEvent(ctx context.Context, event InboundEvent) error
}

// EventHandlerFunc is a function adapter for EventHandler
type EventHandlerFunc func(ctx context.Context, event InboundEvent) error

func (f EventHandlerFunc) HandleEvent(ctx context.Context, event InboundEvent) error {
	return f(ctx, event)
}
