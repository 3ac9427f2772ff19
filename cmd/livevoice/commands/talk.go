package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/realtime-ai/livevoice/pkg/auth"
	"github.com/realtime-ai/livevoice/pkg/config"
	"github.com/realtime-ai/livevoice/pkg/device"
	"github.com/realtime-ai/livevoice/pkg/live"
	"github.com/realtime-ai/livevoice/pkg/pipeline"
	"github.com/realtime-ai/livevoice/pkg/trace"
)

var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Start a live voice conversation",
	Long: `Start a live voice conversation on the default microphone and speaker.

The session starts right away. Press Enter to stop it and Enter again to
start a new one. Type q (or press Ctrl-C) to quit.

Examples:
  livevoice talk
  livevoice talk --voice Kore -i "Responde siempre en español."
  livevoice talk --transport websocket`,
	RunE: runTalk,
}

func init() {
	talkCmd.Flags().String("voice", "", "prebuilt voice (Zephyr, Puck, Charon, Kore, Fenrir)")
	talkCmd.Flags().String("model", "", "live model name")
	talkCmd.Flags().String("transport", "", "transport: genai or websocket")
	talkCmd.Flags().StringP("instruction", "i", "", "system instruction")
}

// applyTalkFlags overrides cfg with the flags that were set.
func applyTalkFlags(cmd *cobra.Command, cfg *config.Config) error {
	for name, dst := range map[string]*string{
		"voice":       &cfg.Voice,
		"model":       &cfg.Model,
		"transport":   &cfg.Transport,
		"instruction": &cfg.SystemInstruction,
	} {
		if !cmd.Flags().Changed(name) {
			continue
		}
		v, err := cmd.Flags().GetString(name)
		if err != nil {
			return fmt.Errorf("failed to read '%s' flag: %w", name, err)
		}
		*dst = v
	}
	return cfg.Validate()
}

func runTalk(cmd *cobra.Command, args []string) error {
	cfg := *globalConfig
	if err := applyTalkFlags(cmd, &cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := trace.Initialize(ctx, cfg.Tracing()); err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := trace.Shutdown(sctx); err != nil {
			log.Printf("[Talk] trace shutdown error: %v", err)
		}
	}()

	history, err := openHistory(&cfg)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
	}

	dev, err := device.NewContext()
	if err != nil {
		return err
	}
	defer dev.Close()

	con := newConsole(os.Stdin)
	keys := auth.NewChain(
		auth.NewEnvSelector(".env"),
		con.KeySelector(cmd.ErrOrStderr()),
	)

	bus := pipeline.NewEventBus()
	events := make(chan pipeline.Event, 64)
	for _, t := range []pipeline.EventType{
		pipeline.EventStateChanged,
		pipeline.EventCaption,
		pipeline.EventInterrupted,
		pipeline.EventTurnComplete,
		pipeline.EventError,
		pipeline.EventWarning,
	} {
		bus.Subscribe(t, events)
	}
	defer bus.Close()

	conv, err := live.New(cfg.LiveConfig(), live.Options{
		Connector:  cfg.Connector(),
		Microphone: dev.Microphone(),
		Output:     dev.Speaker(),
		Keys:       keys,
		Bus:        bus,
		History:    history,
	})
	if err != nil {
		return err
	}
	defer conv.Close()

	start := func() {
		go func() {
			// 失败原因已通过 EventError 展示
			if err := conv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[Talk] start failed: %v", err)
			}
		}()
	}

	out := cmd.OutOrStdout()
	v := newView()
	fmt.Fprintln(out, v.header(cfg.Model, cfg.Voice))
	start()

	commands := con.Commands
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil

		case evt := <-events:
			if line := v.render(evt); line != "" {
				fmt.Fprintln(out, line)
			}

		case line, ok := <-commands:
			if !ok {
				// stdin 已关闭，只能用 Ctrl-C 退出
				commands = nil
				continue
			}
			switch line {
			case "q", "quit", "exit":
				return nil
			case "":
				if conv.State() == live.StateIdle {
					start()
				} else if err := conv.Stop(); err != nil {
					return err
				}
			}
		}
	}
}
