package ivr

import "testing"

const (
	menuSales   = "Thank you for calling Acme. For sales, press 1. For support, press 2. For billing, press 3."
	menuBilling = "You have reached the billing department. For invoices, press 1. For payments, press 2."
	menuRetry   = "Invalid selection. Please try again."
	humanHello  = "Hello, this is Maria speaking, how can I help you today?"
	humanYeah   = "Yeah sure, one second, let me check that for you."
	vmGreeting  = "Hi, you've reached Dave. I'm not available right now, please leave a message after the beep."
)

func TestClassify(t *testing.T) {
	d := NewDetector(Config{})

	tests := []struct {
		name string
		text string
		want Mode
	}{
		{"menu prompt", menuSales, ModeIVR},
		{"retry prompt", menuRetry, ModeIVR},
		{"extension prompt", "If you know your party's extension, enter your extension followed by the pound sign.", ModeIVR},
		{"receptionist", humanHello, ModeConversation},
		{"casual human", humanYeah, ModeConversation},
		{"voicemail greeting", vmGreeting, ModeVoicemail},
		{"too short", "Hello?", ModeUnknown},
		{"no signal", "The weather in Berlin is rather pleasant this afternoon.", ModeUnknown},
		{"try again later is human", "Our systems are down, could you try again later?", ModeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := d.Classify(tt.text)
			if got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestClassifyIVRBeatsVoicemail(t *testing.T) {
	d := NewDetector(Config{})
	text := "To leave a message press 1, or press 2 to return to the main menu."
	got, conf := d.Classify(text)
	if got != ModeIVR {
		t.Fatalf("Classify = %v, want %v", got, ModeIVR)
	}
	if conf < 0.9 {
		t.Errorf("confidence = %v, want >= 0.9", conf)
	}
}

func TestLatchRequiresConsecutive(t *testing.T) {
	d := NewDetector(Config{})

	obs := d.ObserveRemote(menuSales)
	if obs.Changed {
		t.Fatal("mode switched on first IVR classification")
	}
	if d.Mode() != ModeUnknown {
		t.Fatalf("mode = %v after one feed, want %v", d.Mode(), ModeUnknown)
	}

	obs = d.ObserveRemote(menuBilling)
	if !obs.Changed || obs.Mode != ModeIVR {
		t.Fatalf("second consecutive IVR feed: changed=%v mode=%v, want switch to %v",
			obs.Changed, obs.Mode, ModeIVR)
	}
}

func TestLatchUnknownDoesNotResetStreak(t *testing.T) {
	d := NewDetector(Config{})

	d.ObserveRemote(menuSales)
	d.ObserveRemote("Static and line noise without any usable content here.")
	obs := d.ObserveRemote(menuBilling)
	if !obs.Changed || d.Mode() != ModeIVR {
		t.Fatalf("mode = %v, want %v; unknown feed must not reset the streak", d.Mode(), ModeIVR)
	}
}

func TestLatchOpposingClassificationResetsStreak(t *testing.T) {
	d := NewDetector(Config{})

	d.ObserveRemote(menuSales)
	d.ObserveRemote(humanHello)
	d.ObserveRemote(menuBilling)
	if d.Mode() != ModeUnknown {
		t.Fatalf("mode = %v, want %v; human feed must reset the IVR streak", d.Mode(), ModeUnknown)
	}
}

func TestVoicemailSwitchesImmediately(t *testing.T) {
	d := NewDetector(Config{})
	obs := d.ObserveRemote(vmGreeting)
	if !obs.Changed || obs.Mode != ModeVoicemail {
		t.Fatalf("changed=%v mode=%v, want immediate switch to %v", obs.Changed, obs.Mode, ModeVoicemail)
	}
}

func TestIVRToConversationHandoff(t *testing.T) {
	d := NewDetector(Config{})

	d.ObserveRemote(menuSales)
	d.ObserveRemote(menuBilling)
	if d.Mode() != ModeIVR {
		t.Fatalf("mode = %v, want %v", d.Mode(), ModeIVR)
	}
	d.RecordDTMFSent("1")

	d.ObserveRemote(humanHello)
	d.ObserveRemote(humanYeah)
	if d.Mode() != ModeConversation {
		t.Fatalf("mode = %v, want %v", d.Mode(), ModeConversation)
	}

	s := d.Snapshot()
	if len(s.AttemptedDTMF) != 0 || s.LoopDetected || s.LastMenuTranscript != "" {
		t.Errorf("navigation state not cleared on conversation: %+v", s)
	}
}

func TestLoopDetection(t *testing.T) {
	d := NewDetector(Config{})

	d.ObserveRemote(menuSales)
	d.ObserveRemote(menuBilling)
	d.RecordDTMFSent("9")

	// The exact same menu again is a loop.
	obs := d.ObserveRemote(menuSales)
	if !obs.LoopDetected {
		t.Fatal("identical menu not flagged as loop")
	}
	if !d.LoopDetected() {
		t.Error("LoopDetected() = false after loop observation")
	}
	if !d.Failed("9") {
		t.Error("digit sent before looping back not recorded as failed")
	}
}

func TestLoopDetectionNearIdentical(t *testing.T) {
	d := NewDetector(Config{})
	d.ObserveRemote(menuSales)
	d.ObserveRemote(menuBilling)

	reworded := "Thank you for calling Acme. For sales, press 1. For support, press 2. For billing, press 3. Thank you."
	obs := d.ObserveRemote(reworded)
	if !obs.LoopDetected {
		t.Error("near-identical menu not flagged as loop")
	}
}

func TestDistinctMenusAreNotLoops(t *testing.T) {
	d := NewDetector(Config{})
	d.ObserveRemote(menuSales)
	obs := d.ObserveRemote(menuBilling)
	if obs.LoopDetected {
		t.Error("distinct submenu flagged as loop")
	}
}

func TestMenuChangeValidation(t *testing.T) {
	d := NewDetector(Config{})
	d.ObserveRemote(menuSales)
	d.ObserveRemote(menuSales)
	d.RecordDTMFSent("2")

	// Menu did not advance: same prompt comes back.
	obs := d.ObserveRemote(menuSales)
	if obs.FailedDTMF != "2" {
		t.Fatalf("FailedDTMF = %q, want %q", obs.FailedDTMF, "2")
	}
	if !d.Failed("2") || !d.Attempted("2") {
		t.Error("failed digit not recorded in both sets")
	}

	// A different submenu after the next send means the digit worked.
	d.RecordDTMFSent("3")
	obs = d.ObserveRemote(menuBilling)
	if obs.FailedDTMF != "" {
		t.Errorf("FailedDTMF = %q after successful navigation, want empty", obs.FailedDTMF)
	}
	if d.Failed("3") {
		t.Error("successful digit recorded as failed")
	}
}

func TestHistoryBounded(t *testing.T) {
	d := NewDetector(Config{HistorySize: 3})
	menus := []string{
		"For sales press 1 and for support press 2 thank you for calling Acme hardware division today.",
		"For returns press 1 and for exchanges press 2 in our dedicated merchandise returns department line.",
		"For billing press 1 and for payment plans press 2 in the accounts receivable billing department.",
		"For warranty press 1 and for repairs press 2 in the certified technical repairs service center.",
	}
	for _, m := range menus {
		d.ObserveRemote(m)
	}
	if got := len(d.history); got != 3 {
		t.Fatalf("history length = %d, want 3", got)
	}

	// The evicted first menu no longer triggers loop detection by ring
	// membership alone.
	if d.history[0] == menus[0] {
		t.Error("oldest menu not evicted from ring")
	}
}

func TestSeedVoicemail(t *testing.T) {
	d := NewDetector(Config{})
	d.SeedVoicemail()
	if d.Mode() != ModeVoicemail {
		t.Fatalf("mode = %v, want %v", d.Mode(), ModeVoicemail)
	}
}
