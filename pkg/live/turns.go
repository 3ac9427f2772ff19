package live

import "strings"

// turnTracker pairs the user's and the model's transcripts of one turn.
type turnTracker struct {
	user   strings.Builder
	model  strings.Builder
	onTurn func(user, model string)
}

func (t *turnTracker) add(user, model string) {
	t.user.WriteString(user)
	t.model.WriteString(model)
}

func (t *turnTracker) complete() {
	user, model := t.user.String(), t.model.String()
	t.reset()
	if user == "" && model == "" {
		return
	}
	if t.onTurn != nil {
		t.onTurn(user, model)
	}
}

func (t *turnTracker) reset() {
	t.user.Reset()
	t.model.Reset()
}
