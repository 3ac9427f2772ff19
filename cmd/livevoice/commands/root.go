package commands

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/realtime-ai/livevoice/pkg/config"
	"github.com/realtime-ai/livevoice/pkg/transcript"
)

var (
	// Global flags
	configFile string
	verbose    bool

	// Loaded in PersistentPreRunE
	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "livevoice",
	Short: "Hands-free voice conversation with Gemini",
	Long: `livevoice - talk to a Gemini native-audio model in real time.

Microphone audio is streamed to the model while its spoken reply plays back
gaplessly. Speaking over the model interrupts it. A live caption of the
model's speech is shown while it talks.

The API key is taken from GOOGLE_API_KEY or GEMINI_API_KEY (environment or
.env), and asked for on the terminal when neither is set.

Example config file (livevoice.yaml):
  voice: Kore
  transport: genai
  system_instruction: Responde siempre en español.
  caption:
    clear_delay: 5s
  history:
    dir: ~/.livevoice/history

Examples:
  livevoice talk
  livevoice talk --voice Puck
  livevoice -f livevoice.yaml talk
  livevoice history list -n 10`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env 不存在时忽略
		_ = godotenv.Load()

		if !verbose {
			log.SetOutput(io.Discard)
		}

		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		globalConfig = cfg
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "file", "f", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "write logs to stderr")

	rootCmd.AddCommand(talkCmd)
	rootCmd.AddCommand(historyCmd)
}

// openHistory opens the configured turn store. It returns nil when history
// is disabled.
func openHistory(cfg *config.Config) (transcript.Store, error) {
	if cfg.History.Disabled {
		return nil, nil
	}
	if cfg.History.Dir == "" {
		return transcript.NewMemory(), nil
	}
	dir, err := expandHome(cfg.History.Dir)
	if err != nil {
		return nil, err
	}
	store, err := transcript.NewBadger(transcript.BadgerOptions{Dir: dir})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", dir, err)
	}
	return store, nil
}

func expandHome(path string) (string, error) {
	if len(path) < 2 || path[:2] != "~/" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return home + path[1:], nil
}
