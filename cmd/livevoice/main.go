// Package main provides the livevoice CLI: a hands-free voice conversation
// with a Gemini native-audio model over the default microphone and speaker.
//
// Usage:
//
//	livevoice [flags] <command>
//
// Commands:
//
//	talk     - start a live conversation (Enter toggles, q quits)
//	history  - list or clear recorded turns
//
// Configuration is read from an optional YAML file (-f), a .env file and
// LIVE_* environment variables.
package main

import (
	"fmt"
	"os"

	"github.com/realtime-ai/livevoice/cmd/livevoice/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
