package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/tandem/pkg/models"
	"github.com/pario-ai/tandem/pkg/registry"
	"github.com/pario-ai/tandem/pkg/tracker"
)

func newStatsCmd(configPath *string) *cobra.Command {
	var (
		since     time.Duration
		recent    int
		requestID string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-model attempt statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer tr.Close()

			ctx := cmd.Context()

			// Attempt list views
			if requestID != "" || recent > 0 {
				var attempts []models.Attempt
				if requestID != "" {
					attempts, err = tr.Request(ctx, requestID)
				} else {
					attempts, err = tr.Recent(ctx, recent)
				}
				if err != nil {
					return err
				}
				if len(attempts) == 0 {
					fmt.Println("No attempts found.")
					return nil
				}
				rows := make([][]string, 0, len(attempts))
				for _, a := range attempts {
					status := "-"
					if a.StatusCode != 0 {
						status = strconv.Itoa(a.StatusCode)
					}
					rows = append(rows, []string{
						a.CreatedAt.Local().Format("2006-01-02T15:04:05"),
						a.RequestID, registry.DisplayName(a.Model), string(a.Outcome), status, a.Reason,
						strconv.FormatInt(a.LatencyMs, 10),
					})
				}
				fmt.Println(renderTable([]string{"TIME", "REQUEST", "MODEL", "OUTCOME", "STATUS", "REASON", "LATENCY MS"}, rows, 5, 7))
				return nil
			}

			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}
			summaries, err := tr.Summary(ctx, from)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No attempts recorded.")
				return nil
			}

			rows := make([][]string, 0, len(summaries))
			for _, s := range summaries {
				last := "never"
				if !s.LastSuccess.IsZero() {
					last = s.LastSuccess.Local().Format("2006-01-02T15:04:05")
				}
				rate := float64(s.Successes) / float64(s.Attempts) * 100
				rows = append(rows, []string{
					s.Model,
					strconv.Itoa(s.Attempts), strconv.Itoa(s.Successes), strconv.Itoa(s.Failures),
					fmt.Sprintf("%.0f%%", rate),
					strconv.FormatInt(s.AvgLatencyMs, 10), last,
				})
			}
			fmt.Println(renderTable([]string{"MODEL", "ATTEMPTS", "OK", "FAILED", "SUCCESS", "AVG MS", "LAST SUCCESS"}, rows, 2, 3, 4, 5, 6))
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "only count attempts newer than this (e.g. 24h)")
	cmd.Flags().IntVar(&recent, "recent", 0, "list the N most recent attempts")
	cmd.Flags().StringVar(&requestID, "request", "", "list attempts for one request ID")
	return cmd
}
