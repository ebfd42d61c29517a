package cmd

import (
	"errors"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/msto63/spiritflow/internal/meditation"
	"github.com/msto63/spiritflow/internal/tui/flow"
)

var (
	playEnergy  string
	playEmotion string
	playVictory string
	playRelease string
)

var playCmd = &cobra.Command{
	Use:   "play [flow...]",
	Short: "Open the interactive flow player",
	Long: `Opens the interactive player for the given flows (default: rise and rest).

Enter both intentions of a flow to unlock its audio. Enter or space on the
play button generates the meditation once and plays it; pressing it again
pauses, and later presses replay the same recording until an intention changes.

Examples:
  spiritflow play
  spiritflow play rise --energy focus --emotion calm`,
	ValidArgs: []string{"rise", "rest", "morning", "evening"},
	RunE:      runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().StringVar(&playEnergy, "energy", "", "rise: energy to carry today")
	playCmd.Flags().StringVar(&playEmotion, "emotion", "", "rise: emotion to invite in")
	playCmd.Flags().StringVar(&playVictory, "victory", "", "rest: small victory to celebrate")
	playCmd.Flags().StringVar(&playRelease, "release", "", "rest: what to release tonight")
}

func runPlay(cmd *cobra.Command, args []string) error {
	if !isTerminal(os.Stdout) || !isTerminal(os.Stdin) {
		return errors.New("play needs an interactive terminal; use 'spiritflow export' or 'spiritflow serve' instead")
	}

	flows, err := parseFlows(args)
	if err != nil {
		return err
	}

	store, err := openJournal()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	prefill := map[meditation.Flow]meditation.IntentionSet{
		meditation.FlowRise: meditation.Rise(playEnergy, playEmotion),
		meditation.FlowRest: meditation.Rest(playVictory, playRelease),
	}

	controllers, err := newControllers(flows, prefill, "", store)
	if err != nil {
		return err
	}
	defer closeControllers(controllers)

	catalog, err := loadCatalog()
	if err != nil {
		return err
	}

	return flow.Run(flow.Config{
		Controllers:   controllers,
		Catalog:       catalog,
		ToggleTimeout: appConfig.Gemini.Timeout.Duration * 2,
	})
}

func isTerminal(file *os.File) bool {
	if file == nil {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
