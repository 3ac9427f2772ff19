package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/realtime-ai/livevoice/pkg/transcript"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Recorded conversation turns",
	Long: `List or clear the turns recorded by 'livevoice talk'.

Turns are kept in history.dir (see the config file or LIVE_HISTORY_DIR).`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded turns, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		store, err := openPersistentHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		turns, err := store.List(context.Background(), limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(turns)
		}
		if len(turns) == 0 {
			fmt.Fprintln(out, "No turns recorded.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tSESSION\tYOU\tGEMINI")
		for _, t := range turns {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				t.Time.Local().Format("2006-01-02 15:04:05"),
				shortID(t.SessionID), t.User, t.Model)
		}
		return w.Flush()
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recorded turns",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openPersistentHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Clear(context.Background()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
		return nil
	},
}

func init() {
	historyListCmd.Flags().IntP("limit", "n", 20, "show at most the last n turns (0 for all)")
	historyListCmd.Flags().Bool("json", false, "output as JSON")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyClearCmd)
}

func openPersistentHistory() (transcript.Store, error) {
	if globalConfig.History.Dir == "" || globalConfig.History.Disabled {
		return nil, fmt.Errorf("history.dir is not configured")
	}
	return openHistory(globalConfig)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
