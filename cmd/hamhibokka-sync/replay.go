package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/2xteam/hamhibokka-frontend-sub001/client"
)

// fixture is a replay file. Goals are seeded into the cache under the
// MyGoals tag before the session is restored.
type fixture struct {
	Goals     []map[string]any `yaml:"goals"`
	Initial   *client.Envelope `yaml:"initial"`
	Envelopes []replayEnvelope `yaml:"envelopes"`
}

type replayEnvelope struct {
	// Source is "foreground" (default) or "opened".
	Source          string `yaml:"source"`
	client.Envelope `yaml:",inline"`
}

type replayReport struct {
	Intents      []intentView `json:"intents"`
	Alerts       int          `json:"alerts"`
	EvictedGoals []string     `json:"evictedGoals"`
	StaleQueries []string     `json:"staleQueries"`
}

type intentView struct {
	Kind   string            `json:"kind"`
	Params map[string]string `json:"params,omitempty"`
}

func newReplayCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Route a fixture of notification envelopes through the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			fx, err := readFixture(file)
			if err != nil {
				return err
			}

			var (
				mu     sync.Mutex
				report = replayReport{Intents: []intentView{}, EvictedGoals: []string{}, StaleQueries: []string{}}
			)
			c, provider, err := openClient(
				client.WithIntentHandler(func(in client.Intent) {
					mu.Lock()
					report.Intents = append(report.Intents, intentView{Kind: string(in.Kind), Params: in.Params})
					mu.Unlock()
				}),
				client.WithAlertHandler(func(client.Envelope) {
					mu.Lock()
					report.Alerts++
					mu.Unlock()
				}),
			)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ctx := cmd.Context()
			queries := seedGoals(c, fx.Goals)
			provider.SetInitial(fx.Initial)

			s, err := c.Start(ctx)
			if err != nil {
				return fmt.Errorf("activate notifications: %w", err)
			}
			if !s.Authenticated() {
				return fmt.Errorf("no stored session; run `session login` first")
			}

			for _, env := range fx.Envelopes {
				switch env.Source {
				case "", "foreground":
					provider.Deliver(env.Envelope)
				case "opened":
					provider.Open(env.Envelope)
				default:
					return fmt.Errorf("envelope %q: unknown source %q", env.ID, env.Source)
				}
			}
			if err := c.Flush(ctx); err != nil {
				return err
			}
			log.Debug().Int("envelopes", len(fx.Envelopes)).Msg("replay flushed")

			for _, g := range fx.Goals {
				id := fmt.Sprint(g["id"])
				if !c.Cache().Has(client.Identify(client.TypeGoal, id)) {
					report.EvictedGoals = append(report.EvictedGoals, id)
				}
			}
			for name, id := range queries {
				if c.Cache().IsStale(id) {
					report.StaleQueries = append(report.StaleQueries, name)
				}
			}
			sort.Strings(report.StaleQueries)

			mu.Lock()
			defer mu.Unlock()
			b, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML fixture with envelopes (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readFixture(path string) (*fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var fx fixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return &fx, nil
}

// seedGoals writes every goal and records the two goal list queries over
// them, returning the query ids by tag name.
func seedGoals(c *client.Client, goals []map[string]any) map[string]client.QueryID {
	var keys []client.CacheKey
	for _, g := range goals {
		key := client.Identify(client.TypeGoal, fmt.Sprint(g["id"]))
		c.Cache().WriteFragment(key, g)
		keys = append(keys, key)
	}
	return map[string]client.QueryID{
		string(client.TagMyGoals):        c.Cache().RecordQuery(string(client.TagMyGoals), []client.QueryTag{client.TagMyGoals}, keys...),
		string(client.TagFollowingGoals): c.Cache().RecordQuery(string(client.TagFollowingGoals), []client.QueryTag{client.TagFollowingGoals}),
	}
}
