// Package domain holds the business records shared across the voice bridge,
// the campaign dispatcher, and the bandit selector: agents, prompt versions,
// contacts, campaigns, and the per-call session bookkeeping types.
//
// The types here are storage-agnostic. internal/store maps them to Postgres;
// [LoadAgentsFile] seeds agents from YAML for development setups.
package domain

import "time"

// ChannelMode says which channels an agent serves.
type ChannelMode string

const (
	ChannelVoice ChannelMode = "voice"
	ChannelText  ChannelMode = "text"
	ChannelBoth  ChannelMode = "both"
)

// IsValid reports whether m is a recognised channel mode.
func (m ChannelMode) IsValid() bool {
	switch m {
	case ChannelVoice, ChannelText, ChannelBoth:
		return true
	}
	return false
}

// VoiceMode selects how an agent's voice sessions are built: a single
// combined realtime connection, or a hybrid pairing of a realtime provider
// for understanding with a separate streaming TTS provider for output.
type VoiceMode string

const (
	VoiceRealtime VoiceMode = "realtime"
	VoiceHybrid   VoiceMode = "hybrid"
)

// IsValid reports whether m is a recognised voice mode.
func (m VoiceMode) IsValid() bool {
	return m == VoiceRealtime || m == VoiceHybrid
}

// Agent is the long-lived configuration for one AI calling persona. Editing
// an agent's prompt creates a new [PromptVersion]; the agent row itself holds
// everything that is not subject to A/B testing.
type Agent struct {
	ID          string      `yaml:"id" json:"id"`
	DisplayName string      `yaml:"display_name" json:"display_name"`
	ChannelMode ChannelMode `yaml:"channel_mode" json:"channel_mode"`

	// VoiceMode selects combined-realtime vs hybrid session construction.
	VoiceMode VoiceMode `yaml:"voice_mode" json:"voice_mode"`

	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id" json:"voice_id"`

	// BaseSystemPrompt is the agent's core instructions, before per-call
	// context is layered on.
	BaseSystemPrompt string `yaml:"base_system_prompt" json:"base_system_prompt"`

	// InitialGreeting is spoken first on inbound calls.
	InitialGreeting string `yaml:"initial_greeting,omitempty" json:"initial_greeting,omitempty"`

	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`

	// TurnDetectionMode and friends tune the provider's server-side VAD.
	TurnDetectionMode      string  `yaml:"turn_detection_mode,omitempty" json:"turn_detection_mode,omitempty"`
	TurnDetectionThreshold float64 `yaml:"turn_detection_threshold,omitempty" json:"turn_detection_threshold,omitempty"`
	SilenceDurationMs      int     `yaml:"silence_duration_ms,omitempty" json:"silence_duration_ms,omitempty"`

	// CalendarEventTypeID is the scheduling provider's event type used by the
	// booking tools. Zero means booking tools are unavailable.
	CalendarEventTypeID int `yaml:"calendar_event_type_id,omitempty" json:"calendar_event_type_id,omitempty"`

	// Timezone is the IANA zone used when presenting slot times to callers.
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`

	// EnabledTools limits which tools the session offers to the model.
	EnabledTools []string `yaml:"enabled_tools,omitempty" json:"enabled_tools,omitempty"`

	// IVREnabled turns on menu detection and DTMF navigation.
	IVREnabled bool `yaml:"ivr_enabled,omitempty" json:"ivr_enabled,omitempty"`

	// IVRGoal describes where the agent should try to navigate, e.g.
	// "reach a human in sales".
	IVRGoal string `yaml:"ivr_goal,omitempty" json:"ivr_goal,omitempty"`

	// IVRLoopThreshold overrides the detector's menu-similarity threshold
	// when > 0.
	IVRLoopThreshold float64 `yaml:"ivr_loop_threshold,omitempty" json:"ivr_loop_threshold,omitempty"`
}

// ArmStatus is a prompt version's standing in the bandit experiment.
type ArmStatus string

const (
	ArmActive ArmStatus = "active"
	ArmPaused ArmStatus = "paused"

	// ArmEliminated is terminal. An eliminated arm never re-enters rotation.
	ArmEliminated ArmStatus = "eliminated"
)

// IsValid reports whether s is a recognised arm status.
func (s ArmStatus) IsValid() bool {
	switch s {
	case ArmActive, ArmPaused, ArmEliminated:
		return true
	}
	return false
}

// PromptVersion is an immutable snapshot of an agent's prompt, greeting, and
// temperature, acting as one bandit arm. Alpha and Beta are the Beta-prior
// parameters; both start at 1.
type PromptVersion struct {
	ID            string
	AgentID       string
	VersionNumber int

	SystemPrompt    string
	InitialGreeting string
	Temperature     float64

	IsActive  bool
	ArmStatus ArmStatus

	Alpha float64
	Beta  float64

	RewardCount        int
	TotalCalls         int
	SuccessfulCalls    int
	BookedAppointments int
}

// Contact is one person a campaign may reach.
type Contact struct {
	ID        string
	Workspace string

	// Phone is E.164.
	Phone string

	FirstName   string
	LastName    string
	CompanyName string
	Email       string

	// OptedOut is monotonic: once true it never reverts.
	OptedOut bool

	FirstContactedAt *time.Time
}

// FullName joins the contact's name parts, tolerating either being empty.
func (c Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Offer is the promotional context attached to a campaign, referenced by
// message templates and by the session prompt.
type Offer struct {
	ID          string
	Name        string
	Discount    string
	Description string
	Terms       string
}

// CampaignType distinguishes pure SMS campaigns from voice campaigns that
// fall back to SMS when nobody answers.
type CampaignType string

const (
	CampaignSMS              CampaignType = "sms"
	CampaignVoiceSMSFallback CampaignType = "voice_sms_fallback"
)

// IsValid reports whether t is a recognised campaign type.
func (t CampaignType) IsValid() bool {
	return t == CampaignSMS || t == CampaignVoiceSMSFallback
}

// CampaignStatus is a campaign's lifecycle state. Transitions are strict:
// draft → (scheduled|running) ↔ paused → completed; completed and canceled
// are sinks.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCanceled  CampaignStatus = "canceled"
)

// Terminal reports whether s is a sink state.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignCompleted || s == CampaignCanceled
}

// SendingWindow restricts when a campaign may contact people. A nil window
// on the campaign disables the check entirely.
type SendingWindow struct {
	// StartHour and EndHour bound the local-time hours [StartHour, EndHour).
	StartHour int
	EndHour   int

	// Timezone is the IANA zone the hours are interpreted in.
	Timezone string

	// Days lists permitted weekdays. Empty means every day.
	Days []time.Weekday
}

// Contains reports whether now falls inside the window. An unparseable
// timezone fails closed.
func (w SendingWindow) Contains(now time.Time) bool {
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return false
	}
	local := now.In(loc)

	if len(w.Days) > 0 {
		ok := false
		for _, d := range w.Days {
			if local.Weekday() == d {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	h := local.Hour()
	return h >= w.StartHour && h < w.EndHour
}

// Campaign drives outbound SMS or voice outreach.
type Campaign struct {
	ID        string
	Workspace string
	Type      CampaignType
	Status    CampaignStatus

	// FromNumbers is the sending pool, subject to per-number daily caps.
	FromNumbers []string

	InitialMessageTemplate string
	FollowUpTemplate       string

	// AgentID names the agent that handles replies and voice calls.
	AgentID string

	// OfferID optionally attaches an [Offer] for template rendering.
	OfferID string

	// SendingHours is nil when the campaign may send at any time.
	SendingHours *SendingWindow

	MessagesPerMinute  int
	MaxFollowUps       int
	FollowUpDelayHours int

	// SMSFallback enables texting contacts whose call went unanswered.
	// Only meaningful for voice campaigns.
	SMSFallback bool
}

// ContactStatus tracks one contact's progress through a campaign.
type ContactStatus string

const (
	ContactPending      ContactStatus = "pending"
	ContactSent         ContactStatus = "sent"
	ContactDelivered    ContactStatus = "delivered"
	ContactReplied      ContactStatus = "replied"
	ContactQualified    ContactStatus = "qualified"
	ContactOptedOut     ContactStatus = "opted_out"
	ContactFailed       ContactStatus = "failed"
	ContactCompleted    ContactStatus = "completed"
	ContactCalling      ContactStatus = "calling"
	ContactCallAnswered ContactStatus = "call_answered"
	ContactCallFailed   ContactStatus = "call_failed"
	ContactSMSFallback  ContactStatus = "sms_fallback_sent"
)

// Terminal reports whether s permits no further sends.
func (s ContactStatus) Terminal() bool {
	switch s {
	case ContactOptedOut, ContactFailed, ContactCompleted:
		return true
	}
	return false
}

// CampaignContact is the enrollment of one contact in one campaign. At most
// one row exists per (campaign, contact) pair.
type CampaignContact struct {
	CampaignID string
	ContactID  string
	Status     ContactStatus

	Priority  int
	CreatedAt time.Time

	MessagesSent   int
	FollowUpsSent  int
	NextFollowUpAt *time.Time
	CallAttempts   int
	LastError      string

	// Contact is the joined contact row, populated by batch-claim queries.
	Contact Contact
}

// Direction says which side initiated the call.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// CallState is the voice session's lifecycle state.
type CallState string

const (
	CallInitiated CallState = "initiated"
	CallRinging   CallState = "ringing"
	CallAnswered  CallState = "answered"
	CallStreaming CallState = "streaming"
	CallCompleted CallState = "completed"
	CallFailed    CallState = "failed"
)

// Terminal reports whether s releases the session's resources.
func (s CallState) Terminal() bool {
	return s == CallCompleted || s == CallFailed
}

// TranscriptEntry is one utterance in a session transcript. Role is "user"
// or "agent".
type TranscriptEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// CallOutcome classifies how a call ended, for bandit reward updates and
// SMS-fallback decisions.
type CallOutcome string

const (
	OutcomeBookedAppointment CallOutcome = "booked_appointment"
	OutcomeLeadQualified     CallOutcome = "lead_qualified"
	OutcomeRejected          CallOutcome = "rejected"
	OutcomeFailed            CallOutcome = "failed"
	OutcomeNoAnswer          CallOutcome = "no_answer"
	OutcomeBusy              CallOutcome = "busy"
	OutcomeVoicemail         CallOutcome = "voicemail"
)

// Success reports whether o counts as a bandit reward.
func (o CallOutcome) Success() bool {
	return o == OutcomeBookedAppointment || o == OutcomeLeadQualified
}

// FallbackEligible reports whether a voice campaign should text the contact
// instead.
func (o CallOutcome) FallbackEligible() bool {
	switch o {
	case OutcomeNoAnswer, OutcomeBusy, OutcomeVoicemail:
		return true
	}
	return false
}

// AnchorMessage is the per-call database record keyed by the carrier's
// call-control id. It carries the business context into the session when the
// media WebSocket opens, and receives the transcript and booking outcome when
// the session ends.
type AnchorMessage struct {
	CallID     string
	AgentID    string
	ContactID  string
	CampaignID string
	Direction  Direction

	// PromptVersionID is the bandit arm chosen for this call.
	PromptVersionID string

	Transcript     []TranscriptEntry
	BookingOutcome string
	Outcome        CallOutcome

	CreatedAt time.Time
	EndedAt   *time.Time
}
