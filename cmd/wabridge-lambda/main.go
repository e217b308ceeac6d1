// Command wabridge-lambda runs wabridge on AWS Lambda. LAMBDA_ROLE selects
// the webhook role (API Gateway in, SQS out) or the worker role (SQS in).
package main

import (
	"context"

	"github.com/Abraxas-365/wabridge/app"
	"github.com/Abraxas-365/wabridge/eventx/providers/eventxsqs"
	"github.com/Abraxas-365/wabridge/logx"
	"github.com/Abraxas-365/wabridge/msgx"
	"github.com/aws/aws-lambda-go/lambda"
)

func main() {
	ctx := context.Background()

	cfg, err := app.LoadConfig("")
	if err != nil {
		logx.Fatal("config: %v", err)
	}
	s := app.NewSettings(cfg)

	switch s.LambdaRole {
	case "webhook":
		if s.InboundQueueURL == "" {
			logx.Fatal("INBOUND_QUEUE_URL is required for the webhook role")
		}
		content, err := app.LoadContent(ctx, s.ContentPath)
		if err != nil {
			logx.Fatal("content: %v", err)
		}
		client, creds, err := app.NewClient(cfg, content)
		if err != nil {
			logx.Fatal("credentials: %v", err)
		}
		queue, err := eventxsqs.NewFromDefaultConfig(ctx, s.InboundQueueURL)
		if err != nil {
			logx.Fatal("inbound queue: %v", err)
		}
		webhook := msgx.NewWebhookHandler(creds.VerifyToken, client, app.NewQueueDispatcher(queue))
		lambda.Start(newWebhookHandler(webhook, creds.VerifyToken))

	case "worker":
		a, err := app.New(ctx, cfg)
		if err != nil {
			logx.Fatal("startup failed: %v", err)
		}
		lambda.Start(newWorkerHandler(app.NewResponder(a.Orchestrator, a.Events), a.Supervisor))

	default:
		logx.Fatal("unknown LAMBDA_ROLE %q, expected webhook or worker", s.LambdaRole)
	}
}
