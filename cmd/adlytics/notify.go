package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"adlytics/internal/app"
	"adlytics/internal/notify"
)

var errNotDelivered = errors.New("message not delivered")

func newNotifyCmd(open openFunc) *cobra.Command {
	var m notify.Message
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send one message through a configured channel",
		Example: `  adlytics notify --channel telegram --to -100123 --content "spend alert"
  echo "report" | adlytics notify --channel email --to ops@example.com --subject Daily --content -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if m.Content == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read content: %w", err)
				}
				m.Content = strings.TrimRight(string(b), "\n")
			}

			a, err := open(app.WithLazyTelegram())
			if err != nil {
				return err
			}
			defer a.Stop(cmd.Context(), app.StopAppStop)

			ok := a.Send(cmd.Context(), m)
			fmt.Fprintln(cmd.OutOrStdout(), ok)
			if !ok {
				return errNotDelivered
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&m.Channel, "channel", "", "channel name (telegram, email, sms)")
	f.StringVar(&m.To, "to", "", "recipient: chat id, email address or phone number")
	f.StringVar(&m.Content, "content", "", `message body; "-" reads stdin`)
	f.StringVar(&m.Type, "type", "", "telegram: text, photo or document; email: html for an HTML body")
	f.StringVar(&m.Subject, "subject", "", "email subject")
	_ = cmd.MarkFlagRequired("channel")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}
