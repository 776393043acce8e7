package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pario-ai/tandem/pkg/config"
	"github.com/pario-ai/tandem/pkg/registry"
)

func newModelsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the resolved failover order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(*configPath); err != nil {
				return err
			}
			list := registry.New(config.FileSource{Path: *configPath}).Resolve()

			rows := make([][]string, 0, len(list))
			for i, id := range list {
				role := "fallback"
				if i == 0 {
					role = "primary"
				}
				rows = append(rows, []string{strconv.Itoa(i + 1), id, registry.DisplayName(id), role})
			}
			fmt.Println(renderTable([]string{"#", "MODEL", "NAME", "ROLE"}, rows, 1))
			return nil
		},
	}
}
