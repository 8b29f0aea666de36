// Package analysis turns the transcription stream into throttled summary
// updates on the conversation_analysis topic. The narrative update itself is
// delegated to an external service; a plain accumulator is the default.
package analysis

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/medvoice/farah/internal/policy"
	"github.com/medvoice/farah/internal/protocol"
	"github.com/medvoice/farah/internal/relay"
)

// Narrator folds one transcript fragment into the running narrative.
type Narrator interface {
	Update(ctx context.Context, narrative, input string) (string, error)
}

// AppendNarrator is the no-dependency default: it concatenates fragments.
type AppendNarrator struct{}

func (AppendNarrator) Update(_ context.Context, narrative, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return narrative, nil
	}
	if narrative == "" {
		return input, nil
	}
	return narrative + " " + input, nil
}

// Summarizer consumes transcription records and republishes throttled
// narrative summaries.
type Summarizer struct {
	relay     *relay.Relay
	narrator  Narrator
	throttler *Throttler
	now       func() time.Time
}

func NewSummarizer(r *relay.Relay, narrator Narrator, throttler *Throttler) *Summarizer {
	if narrator == nil {
		narrator = AppendNarrator{}
	}
	return &Summarizer{
		relay:     r,
		narrator:  narrator,
		throttler: throttler,
		now:       time.Now,
	}
}

// narrativeRetention bounds how long an idle participant's narrative is kept.
// Calls are minutes long; a narrative idle this long belongs to a finished
// session and is dropped on the next consume.
const narrativeRetention = 15 * time.Minute

// narrative is one participant's accumulated story and its last activity.
type narrative struct {
	text      string
	updatedAt time.Time
}

// Run consumes the transcription topic until the context ends. One narrative
// is kept per participant; summaries go out reliably and a failed publish is
// logged and retried implicitly by the next throttle window.
func (s *Summarizer) Run(ctx context.Context) {
	sub := s.relay.Subscribe(protocol.TopicTranscription)
	defer sub.Close()

	narratives := make(map[string]*narrative)

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub.C():
			if !ok {
				return
			}
			s.consume(ctx, narratives, payload)
		}
	}
}

func (s *Summarizer) consume(ctx context.Context, narratives map[string]*narrative, payload []byte) {
	record, err := protocol.ParseRecord(payload)
	if err != nil {
		log.Printf("analysis: skipping unparseable transcription payload: %v", err)
		return
	}
	if record.Kind != protocol.KindTranscription {
		return
	}

	// Narratives leave the session boundary on the analysis topic, so
	// spoken identifiers are masked before they enter one.
	content, _ := policy.Redact(record.Content)

	now := s.now()
	evictIdle(narratives, now)

	cur := narratives[record.Participant]
	if cur == nil {
		cur = &narrative{}
		narratives[record.Participant] = cur
	}

	updated, err := s.narrator.Update(ctx, cur.text, content)
	if err != nil {
		log.Printf("analysis: narrative update failed for %s: %v", record.Participant, err)
		return
	}
	cur.text = updated
	cur.updatedAt = now

	if !s.throttler.ShouldSend(updated, now) {
		return
	}

	summary, err := protocol.ConversationRecord{
		Participant: record.Participant,
		Content:     updated,
		Timestamp:   now.UTC(),
		Kind:        protocol.KindEvent,
		Metadata:    map[string]string{"source": "summarizer"},
	}.Encode()
	if err != nil {
		log.Printf("analysis: encode summary failed: %v", err)
		return
	}

	if err := s.relay.Publish(ctx, protocol.TopicConversationAnalysis, summary, true); err != nil {
		log.Printf("analysis: summary publish failed: %v", err)
		return
	}
	s.throttler.MarkSent(updated, now)
}

func evictIdle(narratives map[string]*narrative, now time.Time) {
	for participant, n := range narratives {
		if now.Sub(n.updatedAt) > narrativeRetention {
			delete(narratives, participant)
		}
	}
}
