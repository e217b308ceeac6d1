package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Abraxas-365/wabridge/app"
	"github.com/Abraxas-365/wabridge/auth"
	"github.com/Abraxas-365/wabridge/configx"
	"github.com/Abraxas-365/wabridge/logx"
	"github.com/Abraxas-365/wabridge/msgx"
	"github.com/Abraxas-365/wabridge/phonex"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	cfg        configx.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "wabridge",
		Short:         "WhatsApp Business message orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig(opts.configFile)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "optional YAML config file")

	root.AddCommand(
		newServeCmd(opts),
		newSendCmd(opts),
		newDeliverCmd(opts),
		newContentCmd(opts),
		newTokenCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and the delivery supervisor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, opts.cfg)
			if err != nil {
				logx.Fatal("startup failed: %v", err)
			}
			defer a.Close(context.Background())
			return a.Serve(ctx)
		},
	}
}

// ========== send ==========

func newSendCmd(opts *rootOptions) *cobra.Command {
	var to string

	send := &cobra.Command{
		Use:   "send",
		Short: "Send a single message",
	}
	send.PersistentFlags().StringVar(&to, "to", "", "recipient phone number")
	send.MarkPersistentFlagRequired("to")

	var body string
	text := &cobra.Command{
		Use:   "text",
		Short: "Send a text message",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendOne(cmd.Context(), opts.cfg, msgx.NewTextMessage(to, body))
		},
	}
	text.Flags().StringVar(&body, "body", "", "message text")
	text.MarkFlagRequired("body")

	var url, caption string
	image := &cobra.Command{
		Use:   "image",
		Short: "Send an image by public link",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendOne(cmd.Context(), opts.cfg, msgx.NewImageMessage(to, url, caption))
		},
	}
	image.Flags().StringVar(&url, "url", "", "public image URL")
	image.Flags().StringVar(&caption, "caption", "", "optional caption")
	image.MarkFlagRequired("url")

	var name, language, components string
	template := &cobra.Command{
		Use:   "template",
		Short: "Send an approved template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var comps []msgx.TemplateComponent
			if components != "" {
				if err := json.Unmarshal([]byte(components), &comps); err != nil {
					return fmt.Errorf("--components must be a JSON array: %w", err)
				}
			}
			return sendOne(cmd.Context(), opts.cfg, msgx.NewTemplateMessage(to, name, language, comps))
		},
	}
	template.Flags().StringVar(&name, "name", "", "template name")
	template.Flags().StringVar(&language, "language", "en_US", "template language code")
	template.Flags().StringVar(&components, "components", "", "template components as JSON")
	template.MarkFlagRequired("name")

	send.AddCommand(text, image, template)
	return send
}

func sendOne(ctx context.Context, cfg configx.Config, msg msgx.Message) error {
	client, _, err := app.NewClient(cfg, nil)
	if err != nil {
		return err
	}
	s := app.NewSettings(cfg)
	messages := app.NewMessages(client, phonex.NewNormalizer(s.DefaultCountryCode))

	resp, err := messages.Send(ctx, msg)
	if err != nil {
		if msgx.IsAuth(err) {
			logx.Error("OPERATOR ALERT: WhatsApp rejected the access token")
		}
		return err
	}
	return printJSON(resp)
}

// ========== deliver ==========

func newDeliverCmd(opts *rootOptions) *cobra.Command {
	var to, trigger string

	cmd := &cobra.Command{
		Use:   "deliver",
		Short: "Run one content delivery through the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			record, err := a.Orchestrator.Deliver(ctx, to, trigger)
			if err != nil {
				return err
			}
			return printJSON(record)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient phone number")
	cmd.Flags().StringVar(&trigger, "trigger", "", "trigger key, button id or keyword")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("trigger")
	return cmd
}

// ========== content ==========

func newContentCmd(opts *rootOptions) *cobra.Command {
	content := &cobra.Command{
		Use:   "content",
		Short: "Inspect the content registry",
	}

	var path string
	check := &cobra.Command{
		Use:   "check",
		Short: "Validate a content document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				path = app.NewSettings(opts.cfg).ContentPath
			}
			reg, err := app.LoadContent(cmd.Context(), path)
			if err != nil {
				return err
			}
			for _, key := range reg.Keys() {
				fmt.Printf("%-24s %d item(s)\n", key, reg.Resolve(key).Len())
			}
			if labels := reg.Labels(); len(labels) > 0 {
				fmt.Printf("labels: %v\n", labels)
			}
			return nil
		},
	}
	check.Flags().StringVar(&path, "path", "", "content file or s3://bucket/key (defaults to CONTENT_PATH)")

	content.AddCommand(check)
	return content
}

// ========== token ==========

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := app.NewSettings(opts.cfg)
			tokens, err := auth.NewTokenService(s.AdminSecret, s.AdminTokenTTL)
			if err != nil {
				return err
			}
			token, expires, err := tokens.Issue(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, token)
			fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "operator identity")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to ADMIN_TOKEN_TTL)")
	cmd.MarkFlagRequired("subject")
	return cmd
}

// ========== migrate ==========

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the delivery store schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := app.NewSettings(opts.cfg)
			if err := app.Migrate(cmd.Context(), s); err != nil {
				return err
			}
			logx.Info("store %s is up to date", s.StoreKind)
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
