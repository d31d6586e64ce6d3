package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/2xteam/hamhibokka-frontend-sub001/client"
)

func newListenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Connect to the push gateway and print navigation intents until interrupted",
		Long:  "Requires HAMHIBOKKA_PUSH_URL and a stored session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := client.LoadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			c, err := client.Open(cfg, nil,
				client.WithIntentHandler(func(in client.Intent) {
					b, _ := json.Marshal(intentView{Kind: string(in.Kind), Params: in.Params})
					fmt.Fprintln(out, string(b))
				}),
				client.WithAlertHandler(func(env client.Envelope) {
					log.Info().Str("type", string(env.Type)).Str("title", env.Title).Msg("foreground notification")
				}),
			)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			s, err := c.Start(ctx)
			if err != nil {
				return err
			}
			if !s.Authenticated() {
				return fmt.Errorf("no stored session; run `session login` first")
			}
			log.Info().Str("device_token", c.Dispatcher().DeviceToken()).Msg("listening")
			<-ctx.Done()
			return nil
		},
	}
}
