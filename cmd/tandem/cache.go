package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pario-ai/tandem/pkg/cache/sqlite"
	"github.com/pario-ai/tandem/pkg/completion"
	"github.com/pario-ai/tandem/pkg/prompt"
)

func newCacheCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}

	// withCache opens the cache alone; the provider is not needed here.
	withCache := func(fn func(c *sqlite.Cache) error) error {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		c, err := sqlite.New(cfg.DBPath, cfg.Cache.TTL)
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()
		return fn(c)
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(c *sqlite.Cache) error {
				stats, err := c.Stats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Println(renderTable(
					[]string{"ENTRIES", "EXPIRED", "TTL"},
					[][]string{{strconv.FormatInt(stats.Entries, 10), strconv.FormatInt(stats.Expired, 10), c.TTL().String()}},
					1, 2,
				))
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cache entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(c *sqlite.Cache) error {
				if err := c.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Println("All cache entries cleared.")
				return nil
			})
		},
	}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove expired cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(c *sqlite.Cache) error {
				n, err := c.Purge(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("Purged %d expired entries.\n", n)
				return nil
			})
		},
	}

	var (
		principal   string
		contact     string
		contextTag  string
		mode        string
		instruction string
	)
	invalidateCmd := &cobra.Command{
		Use:   "invalidate [message]",
		Short: "Forget the cached answer for one message",
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
			if a.cache == nil {
				return errors.New("cache is disabled")
			}

			scope := completion.ScopeKey(principal, contact)
			err = a.svc.Forget(cmd.Context(), completion.Request{
				Prompt:      strings.Join(args, " "),
				ScopeKey:    scope,
				ContextTag:  contextTag,
				Mode:        m,
				Instruction: instruction,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Invalidated entry in scope %s.\n", scope)
			return nil
		},
	}
	invalidateCmd.Flags().StringVar(&contextTag, "context", "", "relationship context the message was sent with")
	invalidateCmd.Flags().StringVarP(&mode, "mode", "m", string(prompt.ModeTransform), "transform or interpret")
	invalidateCmd.Flags().StringVar(&instruction, "instruction", "", "custom instruction the message was sent with")

	deleteScopeCmd := &cobra.Command{
		Use:   "delete-scope",
		Short: "Remove every entry for one principal and contact",
		RunE: func(cmd *cobra.Command, args []string) error {
			if contact == "" {
				return errors.New("--contact is required")
			}
			return withCache(func(c *sqlite.Cache) error {
				scope := completion.ScopeKey(principal, contact)
				n, err := c.DeleteScope(cmd.Context(), scope)
				if err != nil {
					return err
				}
				fmt.Printf("Removed %d entries from scope %s.\n", n, scope)
				return nil
			})
		},
	}

	for _, c := range []*cobra.Command{invalidateCmd, deleteScopeCmd} {
		c.Flags().StringVar(&principal, "principal", "cli", "caller identity the entry belongs to")
		c.Flags().StringVar(&contact, "contact", "", "contact the entry belongs to")
	}

	cmd.AddCommand(statsCmd, clearCmd, purgeCmd, invalidateCmd, deleteScopeCmd)
	return cmd
}
