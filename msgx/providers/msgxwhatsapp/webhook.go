package msgxwhatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Abraxas-365/wabridge/logx"
	"github.com/Abraxas-365/wabridge/msgx"
)

// ========== Receiver Interface Implementation ==========

// VerifyWebhook checks X-Hub-Signature-256, an HMAC-SHA256 of the raw body
// keyed with the app secret.
func (c *Client) VerifyWebhook(header http.Header, body []byte) error {
	return VerifySignature(c.creds.AppSecret, header.Get(whatsappSignatureHeader), body)
}

// VerifySignature validates a "sha256=<hex>" signature for body
func VerifySignature(appSecret, signature string, body []byte) error {
	if signature == "" {
		return msgx.WebhookRegistry.New(msgx.ErrSignatureInvalid).
			WithDetail("provider", whatsappProvider).
			WithDetail("reason", "missing signature header")
	}

	received, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return msgx.WebhookRegistry.New(msgx.ErrSignatureInvalid).
			WithDetail("provider", whatsappProvider).
			WithDetail("reason", "signature is not hex")
	}

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	if !hmac.Equal(received, mac.Sum(nil)) {
		return msgx.WebhookRegistry.New(msgx.ErrSignatureInvalid).
			WithDetail("provider", whatsappProvider).
			WithDetail("reason", "signature mismatch").
			WithDetail("body_length", len(body))
	}
	return nil
}

// Sign returns the X-Hub-Signature-256 value Meta would send for body
func Sign(appSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// ParseIncoming classifies a webhook POST body
func (c *Client) ParseIncoming(body []byte) ([]msgx.InboundEvent, []error) {
	return NewClassifier(c.labels).Classify(body)
}

// ========== Classifier ==========

// Classifier turns the nested entry[].changes[].value payload into events.
// Each message and status is decoded on its own so one malformed entry
// never hides its siblings.
type Classifier struct {
	labels LabelMatcher
}

// NewClassifier creates a classifier. labels may be nil, in which case text
// is never reclassified as a button click.
func NewClassifier(labels LabelMatcher) *Classifier {
	return &Classifier{labels: labels}
}

const (
	fieldMessages       = "messages"
	fieldTemplateStatus = "message_template_status_update"
)

// Classify returns the recognized events and one error per dropped entry
func (cl *Classifier) Classify(body []byte) ([]msgx.InboundEvent, []error) {
	var payload whatsappWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, []error{classificationError("payload", err)}
	}

	var (
		events []msgx.InboundEvent
		errs   []error
	)
	for i, entry := range payload.Entry {
		for j, change := range entry.Changes {
			where := fmt.Sprintf("entry[%d].changes[%d]", i, j)

			switch change.Field {
			case fieldMessages, "":
				ev, es := cl.classifyMessagesValue(where, change.Value)
				events = append(events, ev...)
				errs = append(errs, es...)
			case fieldTemplateStatus:
				ev, err := classifyTemplateStatus(change.Value)
				if err != nil {
					errs = append(errs, classificationError(where, err))
					continue
				}
				events = append(events, ev)
			default:
				logx.Debug("Ignoring webhook change field %q", change.Field)
			}
		}
	}
	return events, errs
}

func (cl *Classifier) classifyMessagesValue(where string, raw json.RawMessage) ([]msgx.InboundEvent, []error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var value whatsappWebhookValue
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, []error{classificationError(where+".value", err)}
	}

	var (
		events []msgx.InboundEvent
		errs   []error
	)
	for k, rawMsg := range value.Messages {
		var m whatsappIncomingMessage
		if err := json.Unmarshal(rawMsg, &m); err != nil {
			errs = append(errs, classificationError(fmt.Sprintf("%s.messages[%d]", where, k), err))
			continue
		}
		ev, ok, err := cl.classifyMessage(m)
		switch {
		case err != nil:
			errs = append(errs, classificationError(fmt.Sprintf("%s.messages[%d]", where, k), err))
		case ok:
			events = append(events, ev)
		default:
			logx.Debug("Ignoring inbound %q message %s", m.Type, m.ID)
		}
	}

	for k, rawStatus := range value.Statuses {
		var s whatsappStatusUpdate
		if err := json.Unmarshal(rawStatus, &s); err != nil {
			errs = append(errs, classificationError(fmt.Sprintf("%s.statuses[%d]", where, k), err))
			continue
		}
		ev, err := classifyStatus(s)
		if err != nil {
			errs = append(errs, classificationError(fmt.Sprintf("%s.statuses[%d]", where, k), err))
			continue
		}
		events = append(events, ev)
	}

	return events, errs
}

// classifyMessage applies the priority rules: structured button replies,
// then text (with quick-reply label echoes promoted to clicks). Other
// message types are not actionable.
func (cl *Classifier) classifyMessage(m whatsappIncomingMessage) (msgx.InboundEvent, bool, error) {
	if m.From == "" {
		return msgx.InboundEvent{}, false, fmt.Errorf("message %q has no sender", m.ID)
	}

	ev := msgx.InboundEvent{
		From:      m.From,
		MessageID: m.ID,
		Timestamp: parseUnix(m.Timestamp),
	}

	switch m.Type {
	case "interactive":
		if m.Interactive == nil {
			return ev, false, fmt.Errorf("interactive message %q has no interactive block", m.ID)
		}
		var reply *whatsappReply
		switch m.Interactive.Type {
		case "button_reply":
			reply = m.Interactive.ButtonReply
		case "list_reply":
			reply = m.Interactive.ListReply
		default:
			return ev, false, nil
		}
		if reply == nil || reply.ID == "" {
			return ev, false, fmt.Errorf("%s on message %q has no id", m.Interactive.Type, m.ID)
		}
		ev.Kind = msgx.KindButtonClick
		ev.ButtonID = reply.ID
		ev.ButtonTitle = reply.Title
		return ev, true, nil

	case "button":
		if m.Button == nil {
			return ev, false, fmt.Errorf("button message %q has no button block", m.ID)
		}
		id := m.Button.Payload
		if id == "" {
			id = m.Button.Text
		}
		if id == "" {
			return ev, false, fmt.Errorf("button message %q has neither payload nor text", m.ID)
		}
		ev.Kind = msgx.KindButtonClick
		ev.ButtonID = id
		ev.ButtonTitle = m.Button.Text
		return ev, true, nil

	case "text":
		if m.Text == nil {
			return ev, false, fmt.Errorf("text message %q has no text block", m.ID)
		}
		body := strings.TrimSpace(m.Text.Body)
		if body == "" {
			return ev, false, nil
		}
		if cl.labels != nil {
			if label, ok := cl.labels.MatchLabel(body); ok {
				ev.Kind = msgx.KindButtonClick
				ev.ButtonID = label
				ev.ButtonTitle = body
				return ev, true, nil
			}
		}
		ev.Kind = msgx.KindText
		ev.Body = body
		return ev, true, nil
	}

	return ev, false, nil
}

var knownStatuses = map[string]bool{"sent": true, "delivered": true, "read": true, "failed": true}

func classifyStatus(s whatsappStatusUpdate) (msgx.InboundEvent, error) {
	if s.ID == "" {
		return msgx.InboundEvent{}, fmt.Errorf("status has no message id")
	}
	status := strings.ToLower(s.Status)
	if !knownStatuses[status] {
		return msgx.InboundEvent{}, fmt.Errorf("unknown status %q for message %s", s.Status, s.ID)
	}

	ev := msgx.InboundEvent{
		Kind:      msgx.KindDeliveryReceipt,
		MessageID: s.ID,
		Status:    status,
		Recipient: s.RecipientID,
		Timestamp: parseUnix(s.Timestamp),
	}
	if len(s.Errors) > 0 {
		ev.Reason = s.Errors[0].Title
		if ev.Reason == "" {
			ev.Reason = s.Errors[0].Message
		}
	}
	return ev, nil
}

func classifyTemplateStatus(raw json.RawMessage) (msgx.InboundEvent, error) {
	var v whatsappTemplateStatusValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return msgx.InboundEvent{}, err
	}
	if v.MessageTemplateName == "" || v.Event == "" {
		return msgx.InboundEvent{}, fmt.Errorf("template status update without name or event")
	}
	ev := msgx.InboundEvent{
		Kind:         msgx.KindTemplateStatus,
		TemplateName: v.MessageTemplateName,
		Status:       strings.ToUpper(v.Event),
	}
	if v.Reason != "" && !strings.EqualFold(v.Reason, "NONE") {
		ev.Reason = v.Reason
	}
	return ev, nil
}

func classificationError(where string, cause error) error {
	return msgx.WebhookRegistry.NewWithCause(msgx.ErrClassificationFailed, cause).
		WithDetail("provider", whatsappProvider).
		WithDetail("at", where)
}

func parseUnix(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

// ========== Webhook Structures ==========

type whatsappWebhookPayload struct {
	Object string                 `json:"object"`
	Entry  []whatsappWebhookEntry `json:"entry"`
}

type whatsappWebhookEntry struct {
	ID      string                  `json:"id"`
	Changes []whatsappWebhookChange `json:"changes"`
}

type whatsappWebhookChange struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

type whatsappWebhookValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         whatsappMetadata  `json:"metadata"`
	Messages         []json.RawMessage `json:"messages,omitempty"`
	Statuses         []json.RawMessage `json:"statuses,omitempty"`
}

type whatsappMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type whatsappIncomingMessage struct {
	From        string                `json:"from"`
	ID          string                `json:"id"`
	Timestamp   string                `json:"timestamp"`
	Type        string                `json:"type"`
	Text        *whatsappIncomingText `json:"text,omitempty"`
	Interactive *whatsappInteractive  `json:"interactive,omitempty"`
	Button      *whatsappButton       `json:"button,omitempty"`
}

type whatsappIncomingText struct {
	Body string `json:"body"`
}

type whatsappInteractive struct {
	Type        string         `json:"type"`
	ButtonReply *whatsappReply `json:"button_reply,omitempty"`
	ListReply   *whatsappReply `json:"list_reply,omitempty"`
}

type whatsappReply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type whatsappButton struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

type whatsappStatusUpdate struct {
	ID          string                `json:"id"`
	Status      string                `json:"status"`
	Timestamp   string                `json:"timestamp"`
	RecipientID string                `json:"recipient_id"`
	Errors      []whatsappStatusError `json:"errors,omitempty"`
}

type whatsappStatusError struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

type whatsappTemplateStatusValue struct {
	Event                   string `json:"event"`
	MessageTemplateID       int64  `json:"message_template_id"`
	MessageTemplateName     string `json:"message_template_name"`
	MessageTemplateLanguage string `json:"message_template_language"`
	Reason                  string `json:"reason"`
}
