package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/2xteam/hamhibokka-frontend-sub001/client"
)

type sessionView struct {
	Status string       `json:"status"`
	Token  string       `json:"token,omitempty"`
	User   *client.User `json:"currentUser,omitempty"`
}

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show or change the stored session",
	}
	cmd.AddCommand(newSessionShowCmd(), newSessionLoginCmd(), newSessionLogoutCmd())
	return cmd
}

func newSessionShowCmd() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Restore the stored session and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openClient()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			s, err := c.Start(cmd.Context())
			if err != nil {
				log.Warn().Err(err).Msg("notifications unavailable")
			}
			return printSession(cmd, s, reveal)
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal-token", false, "Print the token instead of masking it")
	return cmd
}

func newSessionLoginCmd() *cobra.Command {
	var token, userFile string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a token and user as the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := readUser(userFile)
			if err != nil {
				return err
			}

			c, _, err := openClient()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if _, err := c.Start(cmd.Context()); err != nil {
				log.Warn().Err(err).Msg("notifications unavailable")
			}
			if err := c.Login(cmd.Context(), token, user); err != nil {
				return err
			}
			log.Debug().Str("user_id", user.ID).Msg("logged in")
			return printSession(cmd, c.Session(), false)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Credential token (required)")
	cmd.Flags().StringVar(&userFile, "user", "", "YAML or JSON file with the user record (required)")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSessionLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openClient()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			_, _ = c.Start(cmd.Context())
			if err := c.Logout(cmd.Context()); err != nil {
				// the local session ended regardless
				log.Warn().Err(err).Msg("stored session may not have been cleared")
			}
			return printSession(cmd, c.Session(), false)
		},
	}
}

// readUser decodes a user record. YAML is a superset of JSON, so both work.
func readUser(path string) (*client.User, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read user file: %w", err)
	}
	var u client.User
	if err := yaml.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode user file: %w", err)
	}
	return &u, nil
}

func printSession(cmd *cobra.Command, s client.Session, reveal bool) error {
	v := sessionView{Status: s.Status.String(), Token: s.Token, User: s.User}
	if !reveal && len(v.Token) > 4 {
		v.Token = v.Token[:4] + "…"
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
