// Package auth selects the API key used to open live sessions.
package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"github.com/realtime-ai/livevoice/pkg/live"
)

// ErrNoKey is returned when a selection ends without a key.
var ErrNoKey = errors.New("no api key selected")

// DefaultKeyVars are the environment variables checked, in order.
var DefaultKeyVars = []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"}

// EnvSelector takes the key from the environment. Selecting again re-reads
// the dotenv files, so a key fixed in .env is picked up without a restart.
type EnvSelector struct {
	vars  []string
	files []string

	mu  sync.Mutex
	key string
}

var _ live.KeySelector = (*EnvSelector)(nil)

// NewEnvSelector creates a selector reading DefaultKeyVars from the
// process environment and from files (default ".env").
func NewEnvSelector(files ...string) *EnvSelector {
	if len(files) == 0 {
		files = []string{".env"}
	}
	return &EnvSelector{vars: DefaultKeyVars, files: files}
}

func (s *EnvSelector) HasSelectedKey(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == "" {
		s.key = s.fromEnv()
	}
	return s.key != ""
}

func (s *EnvSelector) OpenSelectKey(context.Context) error {
	values := map[string]string{}
	for _, f := range s.files {
		m, err := godotenv.Read(f)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("read %s: %w", f, err)
			}
			continue
		}
		for k, v := range m {
			if _, ok := values[k]; !ok {
				values[k] = v
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range s.vars {
		if v := strings.TrimSpace(values[name]); v != "" {
			s.key = v
			return nil
		}
	}
	if s.key = s.fromEnv(); s.key != "" {
		return nil
	}
	return ErrNoKey
}

func (s *EnvSelector) APIKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

func (s *EnvSelector) fromEnv() string {
	for _, name := range s.vars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// PromptSelector asks for the key on a terminal. A single goroutine reads
// the input; a line typed after a prompt was cancelled answers the next one.
type PromptSelector struct {
	in  io.Reader
	out io.Writer

	readOnce sync.Once
	lines    chan string

	mu  sync.Mutex
	key string
}

var _ live.KeySelector = (*PromptSelector)(nil)

// NewPromptSelector reads keys from in and writes prompts to out.
func NewPromptSelector(in io.Reader, out io.Writer) *PromptSelector {
	return &PromptSelector{in: in, out: out, lines: make(chan string)}
}

func (p *PromptSelector) HasSelectedKey(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.key != ""
}

// readLines feeds lines until the input ends, then closes lines.
func (p *PromptSelector) readLines() {
	defer close(p.lines)
	r := bufio.NewReader(p.in)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			p.lines <- line
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("[Auth] read api key: %v", err)
			}
			return
		}
	}
}

// OpenSelectKey prompts for a key. An empty line keeps the current key.
func (p *PromptSelector) OpenSelectKey(ctx context.Context) error {
	p.readOnce.Do(func() { go p.readLines() })

	fmt.Fprint(p.out, "Enter your Gemini API key: ")

	var line string
	select {
	case line = <-p.lines:
		// 输入结束时 line 为空
	case <-ctx.Done():
		return ctx.Err()
	}

	key := strings.TrimSpace(line)
	p.mu.Lock()
	defer p.mu.Unlock()
	if key != "" {
		p.key = key
	}
	if p.key == "" {
		return ErrNoKey
	}
	return nil
}

func (p *PromptSelector) APIKey() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.key
}

// Chain tries selectors in order. Selecting again moves on to the first
// selector that yields a key different from the current one, so a key the
// server rejected is not picked again.
type Chain struct {
	selectors []live.KeySelector

	mu     sync.Mutex
	active live.KeySelector
}

var _ live.KeySelector = (*Chain)(nil)

// NewChain creates a chain of selectors.
func NewChain(selectors ...live.KeySelector) *Chain {
	return &Chain{selectors: selectors}
}

func (c *Chain) HasSelectedKey(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil && c.active.HasSelectedKey(ctx) {
		return true
	}
	for _, s := range c.selectors {
		if s.HasSelectedKey(ctx) {
			c.active = s
			return true
		}
	}
	return false
}

func (c *Chain) OpenSelectKey(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rejected := ""
	if c.active != nil {
		rejected = c.active.APIKey()
	}

	var errs []error
	for _, s := range c.selectors {
		if err := s.OpenSelectKey(ctx); err != nil {
			errs = append(errs, err)
			continue
		}
		if s.HasSelectedKey(ctx) && s.APIKey() != rejected {
			c.active = s
			return nil
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrNoKey}, errs...)...)
	}
	return ErrNoKey
}

func (c *Chain) APIKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.APIKey()
}
