package main

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/cprosche/visibility-testing/internal/propagation"
)

func newEnginesCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "engines",
		Short: "List the built-in propagation engines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engines, err := propagation.DefaultRegistry().Select(nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if asJSON {
				type entry struct {
					Name string `json:"name"`
					propagation.EngineInfo
				}
				list := make([]entry, 0, len(engines))
				for _, e := range engines {
					list = append(list, entry{Name: e.Name(), EngineInfo: e.Info()})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}

			rows := make([][]string, 0, len(engines))
			for _, e := range engines {
				info := e.Info()
				name := e.Name()
				if name == a.cfg.Reference {
					name += " (reference)"
				}
				rows = append(rows, []string{name, info.LibraryName, info.LibraryVersion, info.Platform})
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("Engine", "Library", "Version", "Platform").
				Rows(rows...)
			_, err = fmt.Fprintln(out, t.Render())
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
