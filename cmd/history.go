package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bookload/internal/cli"
	"bookload/internal/storage"
	"bookload/internal/tui"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		browse, _ := cmd.Flags().GetBool("browse")

		return withStore(func(s *storage.Store) error {
			items, err := s.List(limit)
			if err != nil {
				return err
			}
			if browse {
				return tui.BrowseHistory(items)
			}
			cli.PrintHistory(cmd.OutOrStdout(), items)
			return nil
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run (an ID prefix is enough)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *storage.Store) error {
			item, err := s.Get(args[0])
			if err != nil {
				return err
			}
			cli.PrintRun(cmd.OutOrStdout(), *item)
			return nil
		})
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *storage.Store) error {
			if err := s.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		})
	},
}

func withStore(fn func(*storage.Store) error) error {
	path, err := historyPath(viper.GetViper())
	if err != nil {
		return err
	}
	s, err := storage.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "number of runs to list (0 for all)")
	historyCmd.Flags().Bool("browse", false, "browse runs interactively")
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}
