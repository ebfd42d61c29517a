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
)

var replayCmd = &cobra.Command{
	Use:   "replay <file.wav>",
	Short: "Play an exported meditation",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	buf, err := audio.DecodeWAV(data)
	if err != nil {
		return err
	}

	dev, err := audio.Open(deviceConfig(""))
	if err != nil {
		return err
	}
	defer dev.Close()

	stream, err := dev.NewStream(buf)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "Playing %s (%s), Ctrl+C to stop\n", args[0], buf.Duration().Round(time.Second))
	if err := stream.Start(); err != nil {
		return err
	}

	err = audio.Wait(ctx, stream)
	if errors.Is(err, context.Canceled) {
		stream.Stop()
		return nil
	}
	return err
}
