package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pario-ai/tandem/pkg/completion"
	"github.com/pario-ai/tandem/pkg/prompt"
	"github.com/pario-ai/tandem/pkg/registry"
)

func newCompleteCmd(configPath *string) *cobra.Command {
	var (
		principal   string
		contact     string
		contextTag  string
		mode        string
		contactName string
	)

	cmd := &cobra.Command{
		Use:   "complete [message]",
		Short: "Send one message through the cache and failover chain",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := prompt.ParseMode(mode)
			if err != nil {
				return err
			}

			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.svc.Complete(cmd.Context(), completion.Request{
				Prompt:      strings.Join(args, " "),
				ScopeKey:    completion.ScopeKey(principal, contact),
				ContextTag:  contextTag,
				Mode:        m,
				SessionID:   completion.SessionKey(principal, ""),
				ContactName: contactName,
				RequestID:   uuid.NewString(),
			})
			if err != nil {
				return err
			}

			fmt.Println(res.Text)
			source := "provider"
			if res.Cached {
				source = "cache"
			}
			fmt.Printf("\nscore %d/10 (%s) | %s, %s | %s via %s\n",
				res.Score, res.Rationale, res.Sentiment, res.EmotionalState, registry.DisplayName(res.ModelUsed), source)
			return nil
		},
	}

	cmd.Flags().StringVar(&principal, "principal", "cli", "caller identity used for cache scoping")
	cmd.Flags().StringVar(&contact, "contact", "", "contact the message concerns")
	cmd.Flags().StringVar(&contextTag, "context", "", "relationship context (romantic, coparenting, ...)")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(prompt.ModeTransform), "transform or interpret")
	cmd.Flags().StringVar(&contactName, "name", "", "contact's display name")
	return cmd
}
