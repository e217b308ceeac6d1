package msgx

import (
	"net/http"

	"github.com/Abraxas-365/wabridge/errx"
)

// Registry holds generic messaging errors
var Registry = errx.NewRegistry("MSGX")

var (
	ErrInvalidMessage        = Registry.Register("INVALID_MESSAGE", errx.TypeValidation, http.StatusBadRequest, "Invalid message")
	ErrProviderNotFound      = Registry.Register("PROVIDER_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Messaging provider not found")
	ErrProviderConfigInvalid = Registry.Register("PROVIDER_CONFIG_INVALID", errx.TypeConfig, http.StatusInternalServerError, "Messaging provider configuration invalid")
)

// WebhookRegistry holds verification and classification errors
var WebhookRegistry = errx.NewRegistry("WEBHOOK")

var (
	ErrVerificationFailed   = WebhookRegistry.Register("VERIFICATION_FAILED", errx.TypeAuthorization, http.StatusForbidden, "Webhook verification failed")
	ErrSignatureInvalid     = WebhookRegistry.Register("SIGNATURE_INVALID", errx.TypeAuthentication, http.StatusUnauthorized, "Webhook signature invalid")
	ErrClassificationFailed = WebhookRegistry.Register("CLASSIFICATION_FAILED", errx.TypeBadRequest, http.StatusBadRequest, "Webhook event could not be classified")
	ErrPayloadTooLarge      = WebhookRegistry.Register("PAYLOAD_TOO_LARGE", errx.TypeBadRequest, http.StatusRequestEntityTooLarge, "Webhook payload too large")
)

// DeliveryRegistry holds the send failure taxonomy shared by every sender
// and the delivery orchestrator.
var DeliveryRegistry = errx.NewRegistry("DELIVERY")

var (
	ErrAuth                 = DeliveryRegistry.Register("AUTH", errx.TypeAuthentication, http.StatusBadGateway, "Provider rejected credentials")
	ErrRateLimited          = DeliveryRegistry.Register("RATE_LIMITED", errx.TypeRateLimit, http.StatusTooManyRequests, "Provider rate limit reached")
	ErrRecipientUnreachable = DeliveryRegistry.Register("RECIPIENT_UNREACHABLE", errx.TypeBusiness, http.StatusUnprocessableEntity, "Recipient cannot receive messages")
	ErrTransientNetwork     = DeliveryRegistry.Register("TRANSIENT_NETWORK", errx.TypeUnavailable, http.StatusBadGateway, "Transient provider failure")
	ErrRejected             = DeliveryRegistry.Register("REJECTED", errx.TypeExternal, http.StatusBadGateway, "Provider rejected the request")
	ErrDeadlineExceeded     = DeliveryRegistry.Register("DEADLINE_EXCEEDED", errx.TypeTimeout, http.StatusGatewayTimeout, "Delivery did not finish in time")
	ErrInvalidRecipient     = DeliveryRegistry.Register("INVALID_RECIPIENT", errx.TypeValidation, http.StatusBadRequest, "Invalid recipient")
)

// IsAuth reports a credential failure. These imply a total outage.
func IsAuth(err error) bool {
	return errx.IsCode(err, ErrAuth)
}

// IsRetryable reports whether a send may succeed if attempted again
func IsRetryable(err error) bool {
	return errx.IsCode(err, ErrRateLimited) || errx.IsCode(err, ErrTransientNetwork)
}

func IsRecipientUnreachable(err error) bool {
	return errx.IsCode(err, ErrRecipientUnreachable)
}
