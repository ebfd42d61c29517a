package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/msto63/spiritflow/internal/journal"
	"github.com/msto63/spiritflow/internal/meditation"
)

var (
	historyFlow  string
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List generated meditations",
	Long: `Lists recent entries from the generation journal, newest first.

Examples:
  spiritflow history
  spiritflow history --flow rest --limit 5
  spiritflow history --json`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyFlow, "flow", "", "only show entries of one flow")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of entries")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print entries as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openJournal()
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("the journal is disabled in the configuration")
	}
	defer store.Close()

	filter := journal.Filter{Limit: historyLimit}
	if historyFlow != "" {
		f, err := meditation.ParseFlow(historyFlow)
		if err != nil {
			return err
		}
		filter.Flow = f
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entries, err := store.List(ctx, filter)
	if err != nil {
		return err
	}

	if historyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if entries == nil {
			entries = []*journal.Entry{}
		}
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No meditations recorded yet.")
		return nil
	}

	fmt.Println(renderTable(historyColumns, historyRows(entries, time.Now())))

	stats, err := store.Statistics(ctx)
	if err == nil {
		fmt.Printf("%d recorded: %d rise, %d rest\n",
			stats.Total, stats.PerFlow[meditation.FlowRise], stats.PerFlow[meditation.FlowRest])
	}
	return nil
}

func historyRows(entries []*journal.Entry, now time.Time) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			formatWhen(e.CreatedAt, now),
			string(e.Flow),
			e.Intentions.Primary + " / " + e.Intentions.Secondary,
			e.Voice,
			e.Duration.Round(time.Second).String(),
			shorten(e.Script, 60),
		})
	}
	return rows
}

func formatWhen(t, now time.Time) string {
	t = t.Local()
	y1, m1, d1 := t.Date()
	y2, m2, d2 := now.Local().Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return "today " + t.Format("15:04")
	}
	return t.Format("2006-01-02 15:04")
}

func shorten(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
