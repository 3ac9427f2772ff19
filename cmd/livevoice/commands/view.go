package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/realtime-ai/livevoice/pkg/pipeline"
)

// Styles for the talk screen
type styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Caption lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Help    lipgloss.Style
	States  map[string]lipgloss.Style
}

func newStyles() styles {
	primary := lipgloss.Color("#00ff9f")
	dim := lipgloss.Color("#6e7681")
	return styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(primary),
		Label:   lipgloss.NewStyle().Bold(true).Foreground(primary),
		Caption: lipgloss.NewStyle().Italic(true),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff5f5f")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("#ffd75f")),
		Help:    lipgloss.NewStyle().Foreground(dim),
		States: map[string]lipgloss.Style{
			"idle":        lipgloss.NewStyle().Foreground(dim),
			"connecting":  lipgloss.NewStyle().Foreground(lipgloss.Color("#ffd75f")),
			"active":      lipgloss.NewStyle().Bold(true).Foreground(primary),
			"interrupted": lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff")),
			"stopped":     lipgloss.NewStyle().Foreground(dim),
		},
	}
}

// view turns bus events into terminal lines.
type view struct {
	st      styles
	caption string
}

func newView() *view {
	return &view{st: newStyles()}
}

func (v *view) header(model, voice string) string {
	return v.st.Title.Render("livevoice") + " " +
		v.st.Help.Render(fmt.Sprintf("[%s · %s]", model, voice)) + "\n" +
		v.st.Help.Render("Enter: start/stop · q: quit")
}

func (v *view) state(name string) string {
	style, ok := v.st.States[name]
	if !ok {
		style = v.st.Help
	}
	return style.Render("● " + name)
}

// render returns the lines for evt, or "" when nothing changes on screen.
func (v *view) render(evt pipeline.Event) string {
	switch p := evt.Payload.(type) {
	case *pipeline.StatePayload:
		return v.state(p.To)

	case *pipeline.CaptionPayload:
		text := strings.TrimSpace(p.Text)
		if text == v.caption {
			return ""
		}
		v.caption = text
		if text == "" {
			return ""
		}
		return v.st.Label.Render("gemini › ") + v.st.Caption.Render(text)

	case *pipeline.InterruptPayload:
		if !p.Active {
			return ""
		}
		v.caption = ""
		return v.state("interrupted")

	case *pipeline.TurnPayload:
		if strings.TrimSpace(p.User) == "" {
			return ""
		}
		return v.st.Help.Render("you › " + strings.TrimSpace(p.User))

	case *pipeline.ErrorPayload:
		line := fmt.Sprintf("%s: %s", p.Kind, p.Message)
		if evt.Type == pipeline.EventWarning {
			return v.st.Warning.Render("! " + line)
		}
		return v.st.Error.Render("✗ " + line)
	}
	return ""
}
