package msgx

import (
	"context"
	"sort"

	"github.com/Abraxas-365/wabridge/phonex"
	"github.com/Abraxas-365/wabridge/validatex"
)

// Service routes outbound messages to registered senders. Every message is
// validated and its recipient normalized before it reaches a provider.
type Service struct {
	senders       map[string]Sender
	defaultSender string
	normalizer    phonex.Normalizer
}

// NewService creates a new messaging service
func NewService(normalizer phonex.Normalizer) *Service {
	return &Service{
		senders:    make(map[string]Sender),
		normalizer: normalizer,
	}
}

// RegisterSender registers a sender under name. The first sender registered
// becomes the default unless a later one asks to be.
func (s *Service) RegisterSender(name string, sender Sender, isDefault bool) *Service {
	s.senders[name] = sender
	if isDefault || s.defaultSender == "" {
		s.defaultSender = name
	}
	return s
}

// Send sends a message using the default sender
func (s *Service) Send(ctx context.Context, message Message) (*Response, error) {
	return s.SendWithProvider(ctx, s.defaultSender, message)
}

// GetProviderName returns the default sender's name
func (s *Service) GetProviderName() string {
	return s.defaultSender
}

// SendWithProvider sends a message using a specific sender. Provider errors
// are returned as-is so callers can inspect the delivery taxonomy.
func (s *Service) SendWithProvider(ctx context.Context, providerName string, message Message) (*Response, error) {
	sender, exists := s.senders[providerName]
	if !exists {
		return nil, Registry.New(ErrProviderNotFound).
			WithDetail("provider", providerName).
			WithDetail("available_senders", s.senderNames())
	}

	to, err := s.normalizer.Normalize(message.To)
	if err != nil {
		return nil, DeliveryRegistry.NewWithCause(ErrInvalidRecipient, err).
			WithDetail("to", phonex.Mask(message.To))
	}
	message.To = to

	if err := ValidateMessage(message); err != nil {
		return nil, err
	}

	return sender.Send(ctx, message)
}

// ValidateMessage checks that a message carries the content its type needs
func ValidateMessage(message Message) error {
	if err := validatex.Validate(message); err != nil {
		return Registry.NewWithCause(ErrInvalidMessage, err)
	}

	var body any
	switch message.Type {
	case MessageTypeText:
		body = message.Content.Text
	case MessageTypeImage:
		body = message.Content.Media
	case MessageTypeTemplate:
		body = message.Content.Template
	}
	if body == nil || isNilPtr(body) {
		return Registry.NewWithMessage(ErrInvalidMessage, "message content is required").
			WithDetail("type", message.Type)
	}
	if err := validatex.Validate(body); err != nil {
		return Registry.NewWithCause(ErrInvalidMessage, err).WithDetail("type", message.Type)
	}
	return nil
}

func isNilPtr(v any) bool {
	switch p := v.(type) {
	case *TextContent:
		return p == nil
	case *MediaContent:
		return p == nil
	case *TemplateContent:
		return p == nil
	}
	return false
}

func (s *Service) senderNames() []string {
	names := make([]string, 0, len(s.senders))
	for name := range s.senders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
