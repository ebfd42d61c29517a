package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/msto63/spiritflow/internal/audio"
	"github.com/msto63/spiritflow/internal/gemini"
	"github.com/msto63/spiritflow/internal/journal"
	"github.com/msto63/spiritflow/internal/meditation"
	"github.com/msto63/spiritflow/internal/player"
	"github.com/msto63/spiritflow/pkg/core/config"
	"github.com/msto63/spiritflow/pkg/core/logging"
)

var (
	cfgFile string
	verbose bool

	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "spiritflow",
	Short: "SpiritFlow - guided meditation companion",
	Long: `SpiritFlow turns two daily intentions into a short guided meditation,
voiced and played back on your audio device.

Flows:
  rise  - morning: the energy to carry and the emotion to invite
  rest  - evening: a small victory and what to release

The Gemini API key is read from API_KEY or GEMINI_API_KEY.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError("spiritflow", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.SilenceErrors = true
}

func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	if cfgFile != "" {
		appConfig, err = config.Load(cfgFile)
	} else {
		appConfig, err = config.LoadFromEnv()
	}
	if err != nil {
		return err
	}
	if err := appConfig.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level := appConfig.General.LogLevel
	if verbose {
		level = "debug"
	}
	logging.SetDefaults(logging.LoggerConfig{
		Level:  level,
		Format: appConfig.General.LogFormat,
		Output: os.Stderr,
	})
	return nil
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
}

// newGenerator builds the Gemini client from the loaded config
func newGenerator() *gemini.Client {
	g := appConfig.Gemini
	return gemini.NewClient(gemini.Config{
		BaseURL:     g.BaseURL,
		TextModel:   g.TextModel,
		SpeechModel: g.SpeechModel,
		Timeout:     g.Timeout.Duration,
		Credential:  gemini.EnvCredential(g.APIKeyEnv...),
	})
}

// loadCatalog returns the configured prompt catalog or the built-in one
func loadCatalog() (*meditation.Catalog, error) {
	if appConfig.Gemini.TemplatesPath == "" {
		return meditation.DefaultCatalog(), nil
	}
	return meditation.LoadCatalog(appConfig.Gemini.TemplatesPath)
}

// deviceConfig converts the [audio] section; backend overrides it when set
func deviceConfig(backend string) audio.DeviceConfig {
	a := appConfig.Audio
	cfg := audio.DeviceConfig{
		Backend:         a.Backend,
		SampleRate:      a.SampleRate,
		Channels:        a.Channels,
		FramesPerBuffer: a.FramesPerBuffer,
	}
	if backend != "" {
		cfg.Backend = backend
	}
	return cfg
}

// openJournal opens the journal when enabled; it returns nil otherwise
func openJournal() (*journal.SQLiteStore, error) {
	if !appConfig.Journal.Enabled {
		return nil, nil
	}
	return journal.Open(journal.Config{Path: appConfig.Journal.Path})
}

// newControllers creates one controller per flow, each with its own device
func newControllers(flows []meditation.Flow, prefill map[meditation.Flow]meditation.IntentionSet, backend string, store *journal.SQLiteStore) ([]*player.Controller, error) {
	catalog, err := loadCatalog()
	if err != nil {
		return nil, err
	}
	gen := newGenerator()
	devCfg := deviceConfig(backend)

	var controllers []*player.Controller
	for _, f := range flows {
		c, err := player.New(player.Config{
			Flow:       f,
			Intentions: prefill[f],
			Catalog:    catalog,
			Generator:  gen,
			OpenDevice: func() (audio.Device, error) { return audio.Open(devCfg) },
		})
		if err != nil {
			closeControllers(controllers)
			return nil, err
		}
		if store != nil {
			c.AddListener(journal.Listener(store, nil))
		}
		controllers = append(controllers, c)
	}
	return controllers, nil
}

func closeControllers(controllers []*player.Controller) {
	for _, c := range controllers {
		if err := c.Close(); err != nil {
			printError("close "+c.Flow().String(), err)
		}
	}
}

// parseFlows parses flow arguments; no arguments means every flow
func parseFlows(args []string) ([]meditation.Flow, error) {
	if len(args) == 0 {
		return meditation.Flows, nil
	}
	seen := make(map[meditation.Flow]bool)
	var flows []meditation.Flow
	for _, a := range args {
		f, err := meditation.ParseFlow(a)
		if err != nil {
			return nil, err
		}
		if !seen[f] {
			seen[f] = true
			flows = append(flows, f)
		}
	}
	return flows, nil
}
