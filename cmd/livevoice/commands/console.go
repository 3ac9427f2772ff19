package commands

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync/atomic"

	"github.com/realtime-ai/livevoice/pkg/auth"
)

// console owns the terminal input. Each line goes to a pending API key
// prompt when there is one, and to Commands otherwise.
type console struct {
	Commands chan string

	prompt   *io.PipeWriter
	promptIn *io.PipeReader
	awaiting atomic.Bool
}

func newConsole(in io.Reader) *console {
	pr, pw := io.Pipe()
	c := &console{
		Commands: make(chan string, 8),
		prompt:   pw,
		promptIn: pr,
	}
	go c.run(in)
	return c
}

func (c *console) run(in io.Reader) {
	defer close(c.Commands)
	defer c.prompt.Close()

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := sc.Text()
		if c.awaiting.Load() {
			if _, err := io.WriteString(c.prompt, line+"\n"); err != nil {
				return
			}
			continue
		}
		c.Commands <- strings.TrimSpace(line)
	}
}

// KeySelector returns a terminal key prompt fed by this console.
func (c *console) KeySelector(out io.Writer) *consoleKeys {
	return &consoleKeys{PromptSelector: auth.NewPromptSelector(c.promptIn, out), c: c}
}

type consoleKeys struct {
	*auth.PromptSelector
	c *console
}

func (k *consoleKeys) OpenSelectKey(ctx context.Context) error {
	k.c.awaiting.Store(true)
	defer k.c.awaiting.Store(false)
	return k.PromptSelector.OpenSelectKey(ctx)
}
