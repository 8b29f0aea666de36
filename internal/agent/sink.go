package agent

import (
	"context"
	"log"

	"github.com/medvoice/farah/internal/dialogue"
	"github.com/medvoice/farah/internal/session"
)

// ActionSink performs dialogue side effects: speech synthesis, keypad
// prompts, call transfer, hangup. The coordinator never performs these
// itself.
type ActionSink interface {
	Perform(ctx context.Context, sess *session.Session, act dialogue.Action) error
}

// ActionSinkFunc adapts a function to the ActionSink interface.
type ActionSinkFunc func(ctx context.Context, sess *session.Session, act dialogue.Action) error

func (f ActionSinkFunc) Perform(ctx context.Context, sess *session.Session, act dialogue.Action) error {
	return f(ctx, sess, act)
}

// LogSink is the local/dev sink: it logs what a real media stack would do.
func LogSink() ActionSink {
	return ActionSinkFunc(func(_ context.Context, sess *session.Session, act dialogue.Action) error {
		switch a := act.(type) {
		case dialogue.Speak:
			log.Printf("session %s: speak: %s", sess.ID, a.Text)
		case dialogue.PlayDigitMenu:
			log.Printf("session %s: digit menu: %s", sess.ID, a.Prompt)
		case dialogue.TransferCall:
			log.Printf("session %s: transfer to %s", sess.ID, a.Target)
		case dialogue.EndCall:
			log.Printf("session %s: end call (%s)", sess.ID, a.Reason)
		}
		return nil
	})
}
