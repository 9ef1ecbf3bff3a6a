package domain

import (
	"testing"
	"time"
)

func TestSendingWindow_Contains(t *testing.T) {
	window := SendingWindow{
		StartHour: 9,
		EndHour:   17,
		Timezone:  "America/New_York",
		Days:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}

	tests := []struct {
		name string
		// Instants in UTC; America/New_York is UTC-5 in January.
		at   time.Time
		want bool
	}{
		{"mid-morning weekday", time.Date(2025, 1, 13, 15, 0, 0, 0, time.UTC), true},   // Mon 10:00 ET
		{"before opening", time.Date(2025, 1, 13, 13, 30, 0, 0, time.UTC), false},      // Mon 08:30 ET
		{"exactly at open", time.Date(2025, 1, 13, 14, 0, 0, 0, time.UTC), true},       // Mon 09:00 ET
		{"exactly at close", time.Date(2025, 1, 13, 22, 0, 0, 0, time.UTC), false},     // Mon 17:00 ET
		{"saturday", time.Date(2025, 1, 18, 15, 0, 0, 0, time.UTC), false},             // Sat 10:00 ET
		{"sunday evening utc is sunday et", time.Date(2025, 1, 19, 20, 0, 0, 0, time.UTC), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := window.Contains(tc.at); got != tc.want {
				t.Errorf("Contains(%v) = %v, want %v", tc.at, got, tc.want)
			}
		})
	}
}

func TestSendingWindow_EmptyDaysMeansEveryDay(t *testing.T) {
	window := SendingWindow{StartHour: 0, EndHour: 24, Timezone: "UTC"}
	if !window.Contains(time.Date(2025, 1, 18, 3, 0, 0, 0, time.UTC)) {
		t.Error("expected an all-hours window with no day list to contain a Saturday 3am")
	}
}

func TestSendingWindow_BadTimezoneFailsClosed(t *testing.T) {
	window := SendingWindow{StartHour: 0, EndHour: 24, Timezone: "Mars/Olympus_Mons"}
	if window.Contains(time.Now()) {
		t.Error("expected an unparseable timezone to exclude everything")
	}
}

func TestContact_FullName(t *testing.T) {
	tests := []struct {
		first, last, want string
	}{
		{"Alice", "Smith", "Alice Smith"},
		{"Alice", "", "Alice"},
		{"", "Smith", "Smith"},
		{"", "", ""},
	}
	for _, tc := range tests {
		c := Contact{FirstName: tc.first, LastName: tc.last}
		if got := c.FullName(); got != tc.want {
			t.Errorf("FullName(%q, %q) = %q, want %q", tc.first, tc.last, got, tc.want)
		}
	}
}

func TestCallOutcome_Classification(t *testing.T) {
	if !OutcomeBookedAppointment.Success() || !OutcomeLeadQualified.Success() {
		t.Error("booked and qualified outcomes should count as success")
	}
	if OutcomeRejected.Success() || OutcomeFailed.Success() {
		t.Error("rejected and failed outcomes should not count as success")
	}
	for _, o := range []CallOutcome{OutcomeNoAnswer, OutcomeBusy, OutcomeVoicemail} {
		if !o.FallbackEligible() {
			t.Errorf("outcome %q should be SMS-fallback eligible", o)
		}
	}
	if OutcomeRejected.FallbackEligible() {
		t.Error("a rejected call should not trigger SMS fallback")
	}
}

func TestContactStatus_Terminal(t *testing.T) {
	for _, s := range []ContactStatus{ContactOptedOut, ContactFailed, ContactCompleted} {
		if !s.Terminal() {
			t.Errorf("status %q should be terminal", s)
		}
	}
	for _, s := range []ContactStatus{ContactPending, ContactSent, ContactCalling} {
		if s.Terminal() {
			t.Errorf("status %q should not be terminal", s)
		}
	}
}

func TestCallState_Terminal(t *testing.T) {
	if !CallCompleted.Terminal() || !CallFailed.Terminal() {
		t.Error("completed and failed must be terminal")
	}
	if CallStreaming.Terminal() {
		t.Error("streaming must not be terminal")
	}
}
