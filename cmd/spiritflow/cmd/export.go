package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/msto63/spiritflow/internal/audio"
	"github.com/msto63/spiritflow/internal/journal"
	"github.com/msto63/spiritflow/internal/meditation"
	"github.com/msto63/spiritflow/internal/player"
)

var (
	exportPrimary   string
	exportSecondary string
	exportOutput    string
	exportScript    bool
)

var exportCmd = &cobra.Command{
	Use:   "export <flow>",
	Short: "Generate a meditation and save it as a WAV file",
	Long: `Generates one meditation for the given intentions and writes it to disk
without using an audio device.

Examples:
  spiritflow export rise --primary focus --secondary calm -o morning.wav
  spiritflow export rest --primary "finished the report" --secondary worry`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"rise", "rest", "morning", "evening"},
	RunE:      runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportPrimary, "primary", "", "first intention (energy or victory)")
	exportCmd.Flags().StringVar(&exportSecondary, "secondary", "", "second intention (emotion or release)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: <flow>-<time>.wav)")
	exportCmd.Flags().BoolVar(&exportScript, "print-script", false, "print the generated script")
}

func runExport(cmd *cobra.Command, args []string) error {
	f, err := meditation.ParseFlow(args[0])
	if err != nil {
		return err
	}

	set := meditation.IntentionSet{Flow: f, Primary: exportPrimary, Secondary: exportSecondary}
	if !set.Complete() {
		return errors.New("both --primary and --secondary are required")
	}

	catalog, err := loadCatalog()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline := player.NewPipeline(catalog, newGenerator())
	fmt.Fprintf(os.Stderr, "Generating %s meditation...\n", f)

	result, err := pipeline.Run(ctx, set)
	if err != nil {
		return fmt.Errorf("%s (%w)", player.KindOf(err).Message(), err)
	}

	path := exportOutput
	if path == "" {
		path = fmt.Sprintf("%s-%s.wav", f, time.Now().Format("20060102-150405"))
	}
	if err := writeWAV(path, result.Buffer); err != nil {
		return err
	}

	if exportScript {
		fmt.Println(result.Script)
	}
	fmt.Fprintf(os.Stderr, "Saved %s (%s, voice %s)\n", path, result.Buffer.Duration().Round(time.Second), result.Voice)

	store, err := openJournal()
	if err != nil {
		printError("journal", err)
		return nil
	}
	if store != nil {
		defer store.Close()
		entry := &journal.Entry{
			Flow:       f,
			Intentions: set,
			Script:     result.Script,
			Voice:      result.Voice,
			Duration:   result.Buffer.Duration(),
			Elapsed:    result.Elapsed,
		}
		if err := store.Record(ctx, entry); err != nil {
			printError("journal", err)
		}
	}
	return nil
}

func writeWAV(path string, buf *audio.Buffer) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := audio.EncodeWAV(file, buf); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}
