package main

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/Abraxas-365/wabridge/app"
	"github.com/Abraxas-365/wabridge/deliveryx"
	"github.com/Abraxas-365/wabridge/logx"
	"github.com/Abraxas-365/wabridge/msgx"
	"github.com/aws/aws-lambda-go/events"
)

type webhookFunc func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// newWebhookHandler answers the handshake and processes POST deliveries.
// POSTs always get 200 so WhatsApp does not retry payloads we dropped.
func newWebhookHandler(webhook *msgx.WebhookHandler, verifyToken string) webhookFunc {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		switch req.HTTPMethod {
		case http.MethodGet:
			q := req.QueryStringParameters
			if err := msgx.VerifyChallenge(q["hub.mode"], q["hub.verify_token"], verifyToken); err != nil {
				logx.Warn("Webhook verification rejected: %v", err)
				return textResponse(http.StatusForbidden, "Forbidden"), nil
			}
			return textResponse(http.StatusOK, q["hub.challenge"]), nil

		case http.MethodPost:
			body := []byte(req.Body)
			if req.IsBase64Encoded {
				decoded, err := base64.StdEncoding.DecodeString(req.Body)
				if err != nil {
					logx.Warn("Webhook body is not valid base64: %v", err)
					return textResponse(http.StatusOK, "OK"), nil
				}
				body = decoded
			}
			if len(body) > msgx.MaxWebhookBody {
				logx.Warn("Webhook payload of %d bytes dropped", len(body))
				return textResponse(http.StatusOK, "OK"), nil
			}
			webhook.Process(ctx, requestHeader(req), body)
			return textResponse(http.StatusOK, "OK"), nil

		default:
			return textResponse(http.StatusMethodNotAllowed, "Method Not Allowed"), nil
		}
	}
}

func requestHeader(req events.APIGatewayProxyRequest) http.Header {
	h := http.Header{}
	for k, vs := range req.MultiValueHeaders {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	for k, v := range req.Headers {
		if h.Get(k) == "" {
			h.Set(k, v)
		}
	}
	return h
}

func textResponse(status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
		Body:       body,
	}
}

type workerFunc func(ctx context.Context, batch events.SQSEvent) (events.SQSEventResponse, error)

// sweeper closes expired delivery records
type sweeper interface {
	Sweep(ctx context.Context) ([]deliveryx.DeliveryRecord, error)
}

// newWorkerHandler runs each queued event through handler. Failed records
// are reported individually so only they are redelivered. Lambda has no
// long-running supervisor, so every invocation sweeps first.
func newWorkerHandler(handler msgx.EventHandler, sw sweeper) workerFunc {
	return func(ctx context.Context, batch events.SQSEvent) (events.SQSEventResponse, error) {
		if sw != nil {
			if closed, err := sw.Sweep(ctx); err != nil {
				logx.Error("delivery sweep failed: %v", err)
			} else if len(closed) > 0 {
				logx.Warn("closed %d expired deliveries", len(closed))
			}
		}

		var resp events.SQSEventResponse
		for _, record := range batch.Records {
			if err := app.HandleQueued(ctx, handler, []byte(record.Body)); err != nil {
				logx.Error("queued event %s failed: %v", record.MessageId, err)
				resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			}
		}
		return resp, nil
	}
}
