package msgxwhatsapp

import (
	"context"
	"net/http"

	"github.com/Abraxas-365/wabridge/logx"
	"github.com/Abraxas-365/wabridge/msgx"
	"github.com/Abraxas-365/wabridge/phonex"
)

// ========== Sender Interface Implementation ==========

// SendText sends a plain text message and returns the WhatsApp message ID
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	resp, err := c.Send(ctx, msgx.NewTextMessage(to, body))
	if err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// SendImage sends an image by public link with an optional caption
func (c *Client) SendImage(ctx context.Context, to, url, caption string) (string, error) {
	resp, err := c.Send(ctx, msgx.NewImageMessage(to, url, caption))
	if err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// SendTemplate sends an approved template. Components must match the
// template's declared parameters and buttons exactly.
func (c *Client) SendTemplate(ctx context.Context, to, name, languageCode string, components []msgx.TemplateComponent) (string, error) {
	resp, err := c.Send(ctx, msgx.NewTemplateMessage(to, name, languageCode, components))
	if err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// Send sends a message via the WhatsApp Business API
func (c *Client) Send(ctx context.Context, message msgx.Message) (*msgx.Response, error) {
	to, err := c.normalizer.Normalize(message.To)
	if err != nil {
		return nil, msgx.DeliveryRegistry.NewWithCause(msgx.ErrInvalidRecipient, err).
			WithDetail("provider", whatsappProvider)
	}
	message.To = to

	payload, err := c.convertToWhatsAppMessage(message)
	if err != nil {
		return nil, err
	}

	logx.Debug("Sending WhatsApp %s message to %s", message.Type, phonex.Mask(to))

	var sendResp whatsappSendResponse
	attempts, err := c.call(ctx, http.MethodPost, c.messagesURL(), payload, &sendResp)
	if err != nil {
		return nil, err
	}
	if len(sendResp.Messages) == 0 || sendResp.Messages[0].ID == "" {
		return nil, msgx.DeliveryRegistry.NewWithMessage(msgx.ErrRejected, "Provider accepted the request without a message ID").
			WithDetail("provider", whatsappProvider)
	}

	return &msgx.Response{
		MessageID: sendResp.Messages[0].ID,
		Provider:  whatsappProvider,
		To:        to,
		Status:    msgx.StatusSent,
		Timestamp: c.now(),
		Attempts:  attempts,
	}, nil
}

// convertToWhatsAppMessage converts msgx.Message to the Graph API shape
func (c *Client) convertToWhatsAppMessage(msg msgx.Message) (*whatsappMessage, error) {
	if err := msgx.ValidateMessage(msg); err != nil {
		return nil, err
	}

	out := &whatsappMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               msg.To,
		Type:             string(msg.Type),
	}

	switch msg.Type {
	case msgx.MessageTypeText:
		out.Text = &whatsappTextMessage{
			Body:       msg.Content.Text.Body,
			PreviewURL: msg.Content.Text.PreviewURL,
		}
	case msgx.MessageTypeImage:
		out.Image = &whatsappMediaMessage{
			Link:    msg.Content.Media.URL,
			Caption: msg.Content.Media.Caption,
		}
	case msgx.MessageTypeTemplate:
		t := msg.Content.Template
		out.Template = &whatsappTemplateMessage{
			Name:       t.Name,
			Language:   whatsappLanguage{Code: t.Language},
			Components: t.Components,
		}
	}
	return out, nil
}

// ========== WhatsApp API Structures ==========

type whatsappMessage struct {
	MessagingProduct string                   `json:"messaging_product"`
	RecipientType    string                   `json:"recipient_type,omitempty"`
	To               string                   `json:"to"`
	Type             string                   `json:"type"`
	Text             *whatsappTextMessage     `json:"text,omitempty"`
	Image            *whatsappMediaMessage    `json:"image,omitempty"`
	Template         *whatsappTemplateMessage `json:"template,omitempty"`
}

type whatsappTextMessage struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type whatsappMediaMessage struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type whatsappTemplateMessage struct {
	Name       string                   `json:"name"`
	Language   whatsappLanguage         `json:"language"`
	Components []msgx.TemplateComponent `json:"components,omitempty"`
}

type whatsappLanguage struct {
	Code string `json:"code"`
}

type whatsappSendResponse struct {
	MessagingProduct string                    `json:"messaging_product"`
	Contacts         []whatsappContact         `json:"contacts"`
	Messages         []whatsappMessageResponse `json:"messages"`
}

type whatsappContact struct {
	Input string `json:"input"`
	WaID  string `json:"wa_id"`
}

type whatsappMessageResponse struct {
	ID            string `json:"id"`
	MessageStatus string `json:"message_status,omitempty"`
}
