// Package ivr classifies the remote party of a call as a live human, an
// automated phone menu, or a voicemail system, detects repeating menus, and
// extracts DTMF navigation tags from agent output.
//
// A Detector belongs to exactly one voice session and is driven from that
// session's single event-consumer goroutine, so it needs no locking.
package ivr

import "strings"

// Mode is the detector's judgement of who is on the other end.
type Mode string

const (
	ModeUnknown      Mode = "unknown"
	ModeConversation Mode = "conversation"
	ModeIVR          Mode = "ivr"
	ModeVoicemail    Mode = "voicemail"
)

// Default tuning values.
const (
	DefaultConsecutiveClassifications = 2
	DefaultLoopThreshold              = 0.85
	DefaultHistorySize                = 10
	DefaultMinTranscriptLen           = 10
)

// Config tunes a Detector. Zero fields take the package defaults.
type Config struct {
	// ConsecutiveClassifications is how many matching classifications in a
	// row are required to latch a switch to IVR or conversation mode.
	ConsecutiveClassifications int

	// LoopThreshold is the similarity above which two menu transcripts are
	// considered the same menu.
	LoopThreshold float64

	// HistorySize bounds the menu transcript ring used for loop detection.
	HistorySize int

	// MinTranscriptLen is the length below which a transcript is not
	// classified.
	MinTranscriptLen int

	// UseJaccard switches the loop detector to plain word-set overlap
	// instead of TF-IDF cosine.
	UseJaccard bool
}

func (c *Config) applyDefaults() {
	if c.ConsecutiveClassifications <= 0 {
		c.ConsecutiveClassifications = DefaultConsecutiveClassifications
	}
	if c.LoopThreshold <= 0 {
		c.LoopThreshold = DefaultLoopThreshold
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	if c.MinTranscriptLen <= 0 {
		c.MinTranscriptLen = DefaultMinTranscriptLen
	}
}

// Status is a snapshot of the detector's per-session state.
type Status struct {
	Mode               Mode
	LoopDetected       bool
	ConsecutiveIVR     int
	ConsecutiveHuman   int
	AttemptedDTMF      []string
	FailedDTMF         []string
	LastMenuTranscript string
}

// Observation is the result of feeding one remote transcript.
type Observation struct {
	// Mode is the latched mode after this transcript.
	Mode Mode

	// Changed reports whether the latched mode switched on this feed.
	Changed bool

	// LoopDetected reports whether this transcript repeats an earlier menu.
	LoopDetected bool

	// FailedDTMF is the digit sequence recorded as failed when this
	// transcript shows the menu did not advance after a send, or "".
	FailedDTMF string
}

// Detector holds per-session classification state.
type Detector struct {
	cfg Config

	mode             Mode
	consecutiveIVR   int
	consecutiveHuman int
	loopDetected     bool

	attempted map[string]bool
	failed    map[string]bool

	lastDTMFSent       string
	lastMenuTranscript string
	awaitingMenuChange bool

	// history is a bounded ring of menu transcripts seen in IVR mode.
	history []string
}

// NewDetector creates a Detector with the given config.
func NewDetector(cfg Config) *Detector {
	cfg.applyDefaults()
	return &Detector{
		cfg:       cfg,
		mode:      ModeUnknown,
		attempted: make(map[string]bool),
		failed:    make(map[string]bool),
	}
}

// Classify scores one transcript without mutating detector state. The
// returned confidence is 0 for unclassifiable input and rises with match
// dominance.
func (d *Detector) Classify(text string) (Mode, float64) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < d.cfg.MinTranscriptLen {
		return ModeUnknown, 0.0
	}

	exclusive := anyMatch(exclusiveIVRPatterns, trimmed)
	ivrError := countMatches(ivrErrorPatterns, trimmed) > 0 && !anyMatch(ivrErrorExclusions, trimmed)
	if exclusive || ivrError {
		return ModeIVR, 0.95
	}

	ivrCount := 0 // exclusive/error already handled; plain set is empty here
	humanCount := countMatches(humanPatterns, trimmed)
	vmCount := countMatches(voicemailPatterns, trimmed)
	total := ivrCount + humanCount + vmCount
	if total == 0 {
		return ModeUnknown, 0.0
	}

	switch {
	case humanCount > vmCount:
		return ModeConversation, confidence(humanCount, total)
	case vmCount > 0:
		return ModeVoicemail, confidence(vmCount, total)
	default:
		return ModeUnknown, 0.0
	}
}

func confidence(dominant, total int) float64 {
	c := 0.5 + 0.5*float64(dominant)/float64(total)
	if c > 0.95 {
		c = 0.95
	}
	return c
}

// ObserveRemote feeds one remote-party transcript: classification, mode
// latching, loop detection, and menu-change validation after a DTMF send.
func (d *Detector) ObserveRemote(text string) Observation {
	obs := Observation{Mode: d.mode}

	classified, _ := d.Classify(text)
	d.latch(classified, &obs)

	// Menu-change validation: if the menu text after a DTMF send still
	// matches the menu we pressed on, the digit did not advance the tree.
	if d.mode == ModeIVR && d.awaitingMenuChange && d.lastMenuTranscript != "" && d.lastDTMFSent != "" {
		if d.similarity(text, d.lastMenuTranscript) >= d.cfg.LoopThreshold {
			d.failed[d.lastDTMFSent] = true
			obs.FailedDTMF = d.lastDTMFSent
		}
		d.awaitingMenuChange = false
	}

	// Menu transcripts enter the ring as soon as they classify as IVR,
	// before the mode latches, so the latching feed itself can complete a
	// loop later.
	if classified == ModeIVR {
		obs.LoopDetected = d.observeMenu(text)
		d.lastMenuTranscript = text
	}
	return obs
}

// latch applies the consecutive-classification rule. Unknown feeds leave
// counters untouched; a switch to IVR or conversation needs the configured
// streak, voicemail switches immediately.
func (d *Detector) latch(classified Mode, obs *Observation) {
	switch classified {
	case ModeUnknown:
		return
	case ModeIVR:
		d.consecutiveIVR++
		d.consecutiveHuman = 0
		if d.mode != ModeIVR && d.consecutiveIVR >= d.cfg.ConsecutiveClassifications {
			d.setMode(ModeIVR, obs)
		}
	case ModeConversation:
		d.consecutiveHuman++
		d.consecutiveIVR = 0
		if d.mode != ModeConversation && d.consecutiveHuman >= d.cfg.ConsecutiveClassifications {
			d.setMode(ModeConversation, obs)
		}
	case ModeVoicemail:
		d.consecutiveIVR = 0
		d.consecutiveHuman = 0
		if d.mode != ModeVoicemail {
			d.setMode(ModeVoicemail, obs)
		}
	}
}

func (d *Detector) setMode(m Mode, obs *Observation) {
	d.mode = m
	obs.Mode = m
	obs.Changed = true
	if m == ModeConversation {
		// A confirmed human resets all menu-navigation state.
		d.resetNavigation()
	}
}

// resetNavigation clears loop and DTMF bookkeeping when the detector
// concludes a human is on the line.
func (d *Detector) resetNavigation() {
	d.loopDetected = false
	d.history = d.history[:0]
	d.attempted = make(map[string]bool)
	d.failed = make(map[string]bool)
	d.lastDTMFSent = ""
	d.lastMenuTranscript = ""
	d.awaitingMenuChange = false
}

// observeMenu appends one menu transcript to the ring and reports whether it
// repeats any prior entry above the loop threshold.
func (d *Detector) observeMenu(text string) bool {
	loop := false
	for _, prior := range d.history {
		if d.similarity(text, prior) >= d.cfg.LoopThreshold {
			loop = true
			break
		}
	}
	d.history = append(d.history, text)
	if len(d.history) > d.cfg.HistorySize {
		d.history = d.history[1:]
	}
	if loop {
		d.loopDetected = true
		// The last digit we sent led back to a seen menu.
		if d.lastDTMFSent != "" {
			d.failed[d.lastDTMFSent] = true
		}
	}
	return loop
}

func (d *Detector) similarity(a, b string) float64 {
	if d.cfg.UseJaccard {
		return Jaccard(a, b)
	}
	return Similarity(a, b)
}

// RecordDTMFSent notes that the session transmitted digits while on the
// current menu, arming menu-change validation for the next remote
// transcript. Recording only; transmission happens elsewhere.
func (d *Detector) RecordDTMFSent(digits string) {
	d.attempted[digits] = true
	d.lastDTMFSent = digits
	d.awaitingMenuChange = true
}

// SeedVoicemail forces voicemail mode, e.g. from the carrier's
// answering-machine detection result before any transcript arrives.
func (d *Detector) SeedVoicemail() {
	d.mode = ModeVoicemail
}

// Mode returns the latched mode.
func (d *Detector) Mode() Mode { return d.mode }

// LoopDetected reports whether a menu loop has been declared.
func (d *Detector) LoopDetected() bool { return d.loopDetected }

// Attempted reports whether digits have been tried on this menu tree.
func (d *Detector) Attempted(digits string) bool { return d.attempted[digits] }

// Failed reports whether digits are known not to advance the tree.
func (d *Detector) Failed(digits string) bool { return d.failed[digits] }

// Snapshot returns a copy of the detector state for logging and navigation
// prompt assembly.
func (d *Detector) Snapshot() Status {
	return Status{
		Mode:               d.mode,
		LoopDetected:       d.loopDetected,
		ConsecutiveIVR:     d.consecutiveIVR,
		ConsecutiveHuman:   d.consecutiveHuman,
		AttemptedDTMF:      sortedKeys(d.attempted),
		FailedDTMF:         sortedKeys(d.failed),
		LastMenuTranscript: d.lastMenuTranscript,
	}
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	// Insertion sort; the sets hold a handful of digit strings at most.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
