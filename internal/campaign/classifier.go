package campaign

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/parlance-ai/parlance/pkg/provider/llm"
)

// ReplyIntent classifies an inbound SMS reply.
type ReplyIntent string

const (
	IntentOptOut        ReplyIntent = "opt_out"
	IntentInterested    ReplyIntent = "interested"
	IntentNotInterested ReplyIntent = "not_interested"
	IntentNeutral       ReplyIntent = "neutral"
)

// DefaultClassifyTimeout bounds the model call; past it the keyword decision
// stands.
const DefaultClassifyTimeout = 5 * time.Second

// stopWords are the carrier-mandated opt-out keywords. A reply that is
// exactly one of these (after trimming) always opts out, regardless of what
// the model thinks.
var stopWords = map[string]bool{
	"stop": true, "stopall": true, "unsubscribe": true,
	"cancel": true, "end": true, "quit": true, "revoke": true,
}

var positiveWords = []string{"yes", "interested", "sure", "tell me more", "sounds good", "ok", "okay", "yeah"}

var negativeWords = []string{"no", "not interested", "no thanks", "wrong number", "leave me alone"}

// Classifier decides what an inbound reply means. Opt-outs resolve on
// keywords alone; everything else is refined by a completion model when one
// is configured, with the keyword decision as the timeout fallback.
type Classifier struct {
	llm     llm.Provider
	timeout time.Duration
}

// NewClassifier builds a classifier. provider may be nil for keyword-only
// operation.
func NewClassifier(provider llm.Provider, timeout time.Duration) *Classifier {
	if timeout <= 0 {
		timeout = DefaultClassifyTimeout
	}
	return &Classifier{llm: provider, timeout: timeout}
}

const classifierPrompt = `You classify SMS replies to a sales outreach message.
Answer with exactly one word: opt_out, interested, not_interested, or neutral.
opt_out means the person wants no further messages.
interested means they want to hear more or book.
not_interested means a refusal that is not an opt-out demand.
neutral means anything else, including questions.`

// Classify returns the reply's intent.
func (c *Classifier) Classify(ctx context.Context, reply string) ReplyIntent {
	keyword := keywordIntent(reply)
	if keyword == IntentOptOut || c.llm == nil {
		return keyword
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: classifierPrompt,
		Messages:     []llm.Message{{Role: "user", Content: reply}},
		MaxTokens:    8,
	})
	if err != nil {
		slog.Warn("reply classification fell back to keywords", "error", err)
		return keyword
	}

	switch ReplyIntent(strings.ToLower(strings.TrimSpace(resp.Content))) {
	case IntentOptOut:
		return IntentOptOut
	case IntentInterested:
		return IntentInterested
	case IntentNotInterested:
		return IntentNotInterested
	case IntentNeutral:
		return IntentNeutral
	}
	return keyword
}

func keywordIntent(reply string) ReplyIntent {
	norm := strings.ToLower(strings.TrimSpace(reply))
	norm = strings.TrimRight(norm, ".!?")

	if stopWords[norm] {
		return IntentOptOut
	}
	for _, w := range negativeWords {
		if norm == w || strings.HasPrefix(norm, w+" ") || strings.HasPrefix(norm, w+",") {
			return IntentNotInterested
		}
	}
	for _, w := range positiveWords {
		if norm == w || strings.HasPrefix(norm, w+" ") || strings.HasPrefix(norm, w+",") {
			return IntentInterested
		}
	}
	return IntentNeutral
}
