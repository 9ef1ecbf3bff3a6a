// Package prompt assembles the system prompt a voice session sends to its
// AI provider, and renders campaign message templates.
//
// Assembly is deterministic: sections are emitted in a fixed order so two
// calls with the same inputs produce byte-identical prompts. Empty sections
// are omitted entirely rather than rendering as empty headers.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/parlance-ai/parlance/internal/domain"
)

// CallContext carries everything the assembler needs for one call.
type CallContext struct {
	Agent   domain.Agent
	Version domain.PromptVersion

	// Contact is nil for calls with no known counterpart.
	Contact *domain.Contact

	// Offer is nil when the call has no campaign offer attached.
	Offer *domain.Offer

	Direction domain.Direction

	// Now anchors the date preamble and booking instructions. Typically the
	// wall clock in the agent's timezone.
	Now time.Time

	// RealismCues enables delivery hints for providers that honor them.
	RealismCues bool
}

// Assemble builds the full system prompt for a call.
//
// Section order is fixed: date preamble, identity clause, base prompt,
// per-call context, realism cues, search guidance, IVR/DTMF guidance,
// booking instructions, telephony guidance.
func Assemble(cc CallContext) string {
	var sb strings.Builder

	// ── Date preamble ────────────────────────────────────────────────────
	fmt.Fprintf(&sb, "Today is %s.", cc.Now.Format("Monday, January 2, 2006"))

	// ── Identity clause ──────────────────────────────────────────────────
	fmt.Fprintf(&sb, "\n\nYour name is %s. Always refer to yourself as %s; never use any other name.",
		cc.Agent.DisplayName, cc.Agent.DisplayName)

	// ── Base prompt ──────────────────────────────────────────────────────
	base := strings.TrimSpace(cc.Version.SystemPrompt)
	if base == "" {
		base = strings.TrimSpace(cc.Agent.BaseSystemPrompt)
	}
	if base != "" {
		sb.WriteString("\n\n")
		sb.WriteString(base)
	}

	// ── Per-call context ─────────────────────────────────────────────────
	if section := callContextSection(cc); section != "" {
		sb.WriteString("\n\n## Call Context\n")
		sb.WriteString(section)
	}

	// ── Realism cues ─────────────────────────────────────────────────────
	if cc.RealismCues {
		sb.WriteString("\n\n## Delivery\n")
		sb.WriteString("Speak naturally with brief pauses and occasional filler words. " +
			"Keep responses short, one or two sentences, as in a real phone conversation. " +
			"Never read lists or URLs aloud verbatim.")
	}

	// ── Search guidance ──────────────────────────────────────────────────
	if toolEnabled(cc.Agent, "check_availability") {
		sb.WriteString("\n\n## Availability Lookups\n")
		sb.WriteString("When the caller asks about scheduling, use the check_availability tool. " +
			"Offer ONLY the times it returns; never invent or guess times.")
	}

	// ── IVR / DTMF guidance ──────────────────────────────────────────────
	if cc.Agent.IVREnabled {
		sb.WriteString("\n\n## Automated Menus\n")
		sb.WriteString("If an automated phone menu answers, listen to the options and navigate it. " +
			"To press a key, say what you are doing and emit the digits wrapped in a tag, " +
			"for example: I'll press one. <dtmf>1</dtmf>. " +
			"Use w inside the tag for a half-second pause. " +
			"If the same menu repeats, the key you pressed did not work; choose a different one.")
		if goal := strings.TrimSpace(cc.Agent.IVRGoal); goal != "" {
			fmt.Fprintf(&sb, " Your navigation goal: %s.", goal)
		}
	}

	// ── Booking instructions ─────────────────────────────────────────────
	if cc.Agent.CalendarEventTypeID != 0 && toolEnabled(cc.Agent, "book_appointment") {
		sb.WriteString("\n\n## Booking\n")
		fmt.Fprintf(&sb, "The current date is %s. ", cc.Now.Format("2006-01-02"))
		sb.WriteString("To book an appointment, first confirm a time from check_availability, " +
			"then collect the caller's email address, then call book_appointment. " +
			"If booking fails because the slot was taken, offer the alternatives returned " +
			"by the tool and do NOT re-offer the failed time.")
	}

	// ── Telephony guidance ───────────────────────────────────────────────
	sb.WriteString("\n\n## Phone Etiquette\n")
	if cc.Direction == domain.DirectionOutbound {
		sb.WriteString("You placed this call. Be upfront about who you are and why you are calling. " +
			"If the person asks you to stop calling, apologise once, confirm you will remove them, " +
			"and end the call politely.")
	} else {
		sb.WriteString("You answered this call. Greet the caller, find out what they need, " +
			"and help them directly. If you cannot help, say so plainly rather than guessing.")
	}

	return sb.String()
}

// Opener returns the first utterance the agent should speak, injected as a
// response prompt right after session configuration.
//
// Outbound calls open with a pattern interrupt that names the agent and
// admits the call's nature up front. Inbound calls use the configured
// greeting, preferring the prompt version's over the agent's.
func Opener(cc CallContext) string {
	if cc.Direction == domain.DirectionOutbound {
		return fmt.Sprintf(
			"Hey! It's %s. This is a sales call. Do you wanna hang up... or can I give you thirty seconds to tell you why I'm calling?",
			cc.Agent.DisplayName)
	}

	greeting := strings.TrimSpace(cc.Version.InitialGreeting)
	if greeting == "" {
		greeting = strings.TrimSpace(cc.Agent.InitialGreeting)
	}
	if greeting == "" {
		greeting = fmt.Sprintf("Hi, this is %s. How can I help you today?", cc.Agent.DisplayName)
	}
	return greeting
}

// callContextSection renders the who-and-why lines for this call.
func callContextSection(cc CallContext) string {
	var lines []string

	if cc.Direction != "" {
		lines = append(lines, fmt.Sprintf("Direction: %s call", cc.Direction))
	}
	if c := cc.Contact; c != nil {
		if name := c.FullName(); name != "" {
			lines = append(lines, fmt.Sprintf("You are speaking with: %s", name))
		}
		if c.CompanyName != "" {
			lines = append(lines, fmt.Sprintf("Their company: %s", c.CompanyName))
		}
	}
	if o := cc.Offer; o != nil && o.Name != "" {
		line := fmt.Sprintf("Current offer: %s", o.Name)
		if o.Discount != "" {
			line += fmt.Sprintf(" (%s)", o.Discount)
		}
		lines = append(lines, line)
		if o.Description != "" {
			lines = append(lines, fmt.Sprintf("Offer details: %s", o.Description))
		}
		if o.Terms != "" {
			lines = append(lines, fmt.Sprintf("Offer terms: %s", o.Terms))
		}
	}

	return strings.Join(lines, "\n")
}

// toolEnabled reports whether the agent offers the named tool.
func toolEnabled(a domain.Agent, name string) bool {
	for _, t := range a.EnabledTools {
		if t == name {
			return true
		}
	}
	return false
}
