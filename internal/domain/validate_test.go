package domain

import (
	"strings"
	"testing"
)

func validAgent() Agent {
	return Agent{
		ID:               "jess",
		DisplayName:      "Jess",
		ChannelMode:      ChannelVoice,
		VoiceMode:        VoiceRealtime,
		VoiceID:          "alloy",
		BaseSystemPrompt: "You are Jess, a scheduling assistant.",
		Temperature:      0.8,
		EnabledTools:     []string{"check_availability", "book_appointment"},
		Timezone:         "America/New_York",
	}
}

func TestValidateAgent_Valid(t *testing.T) {
	if err := ValidateAgent(validAgent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateAgent_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Agent)
		wantMsg string
	}{
		{"empty display name", func(a *Agent) { a.DisplayName = "" }, "display_name"},
		{"bad channel mode", func(a *Agent) { a.ChannelMode = "fax" }, "channel_mode"},
		{"bad voice mode", func(a *Agent) { a.VoiceMode = "quadraphonic" }, "voice_mode"},
		{"empty prompt", func(a *Agent) { a.BaseSystemPrompt = "" }, "base_system_prompt"},
		{"temperature too high", func(a *Agent) { a.Temperature = 2.5 }, "temperature"},
		{"loop threshold above one", func(a *Agent) { a.IVRLoopThreshold = 1.5 }, "ivr_loop_threshold"},
		{"unknown tool", func(a *Agent) { a.EnabledTools = []string{"order_pizza"} }, "unknown tool"},
		{"bad timezone", func(a *Agent) { a.Timezone = "Mars/Olympus_Mons" }, "timezone"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := validAgent()
			tc.mutate(&a)
			err := ValidateAgent(a)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tc.wantMsg)
			}
		})
	}
}

func TestValidateAgent_JoinsErrors(t *testing.T) {
	a := validAgent()
	a.DisplayName = ""
	a.BaseSystemPrompt = ""
	err := ValidateAgent(a)
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, want := range []string{"display_name", "base_system_prompt"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error %q missing %q", err, want)
		}
	}
}

func validCampaign() Campaign {
	return Campaign{
		ID:                     "c1",
		Type:                   CampaignSMS,
		Status:                 CampaignRunning,
		FromNumbers:            []string{"+15550001111"},
		InitialMessageTemplate: "Hi {first_name}!",
		MessagesPerMinute:      10,
		MaxFollowUps:           2,
		FollowUpDelayHours:     24,
	}
}

func TestValidateCampaign_Valid(t *testing.T) {
	if err := ValidateCampaign(validCampaign()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateCampaign_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Campaign)
		wantMsg string
	}{
		{"bad type", func(c *Campaign) { c.Type = "carrier_pigeon" }, "type"},
		{"no numbers", func(c *Campaign) { c.FromNumbers = nil }, "from_number"},
		{"zero rate", func(c *Campaign) { c.MessagesPerMinute = 0 }, "messages_per_minute"},
		{"negative follow-ups", func(c *Campaign) { c.MaxFollowUps = -1 }, "max_follow_ups"},
		{"inverted window", func(c *Campaign) {
			c.SendingHours = &SendingWindow{StartHour: 17, EndHour: 9, Timezone: "UTC"}
		}, "hour range"},
		{"bad window timezone", func(c *Campaign) {
			c.SendingHours = &SendingWindow{StartHour: 9, EndHour: 17, Timezone: "Nope/Nowhere"}
		}, "timezone"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := validCampaign()
			tc.mutate(&c)
			err := ValidateCampaign(c)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tc.wantMsg)
			}
		})
	}
}

func TestLoadAgentsFromReader(t *testing.T) {
	const yamlDoc = `
agents:
  - id: "jess"
    display_name: "Jess"
    channel_mode: voice
    voice_mode: realtime
    voice_id: "alloy"
    base_system_prompt: "You are Jess."
    temperature: 0.8
    enabled_tools: [check_availability, book_appointment]
`
	af, err := LoadAgentsFromReader(strings.NewReader(yamlDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(af.Agents) != 1 {
		t.Fatalf("agents = %d, want 1", len(af.Agents))
	}
	if af.Agents[0].DisplayName != "Jess" || af.Agents[0].VoiceMode != VoiceRealtime {
		t.Errorf("unexpected agent: %+v", af.Agents[0])
	}
}

func TestLoadAgentsFromReader_RejectsUnknownFields(t *testing.T) {
	const yamlDoc = `
agents:
  - display_name: "Jess"
    channel_mode: voice
    voice_mode: realtime
    base_system_prompt: "You are Jess."
    shoe_size: 42
`
	if _, err := LoadAgentsFromReader(strings.NewReader(yamlDoc)); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestLoadAgentsFromReader_RejectsInvalidAgent(t *testing.T) {
	const yamlDoc = `
agents:
  - display_name: ""
    channel_mode: voice
    voice_mode: realtime
    base_system_prompt: "x"
`
	_, err := LoadAgentsFromReader(strings.NewReader(yamlDoc))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "display_name") {
		t.Errorf("error %q does not mention display_name", err)
	}
}
