package domain

import (
	"errors"
	"fmt"
	"time"
)

// knownTools are the tool names a session can offer to the model.
var knownTools = map[string]bool{
	"check_availability": true,
	"book_appointment":   true,
	"send_dtmf":          true,
}

// ValidateAgent checks an [Agent] for required fields and valid enums.
//
// Rules:
//   - DisplayName must be non-empty.
//   - ChannelMode and VoiceMode must be recognised values.
//   - BaseSystemPrompt must be non-empty.
//   - Temperature must be in [0, 2].
//   - IVRLoopThreshold, when set, must be in (0, 1].
//   - EnabledTools entries must be known tool names.
//   - Timezone, when set, must be a loadable IANA zone.
func ValidateAgent(a Agent) error {
	var errs []error

	if a.DisplayName == "" {
		errs = append(errs, errors.New("display_name must not be empty"))
	}
	if !a.ChannelMode.IsValid() {
		errs = append(errs, fmt.Errorf("channel_mode %q is not recognised", a.ChannelMode))
	}
	if !a.VoiceMode.IsValid() {
		errs = append(errs, fmt.Errorf("voice_mode %q is not recognised", a.VoiceMode))
	}
	if a.BaseSystemPrompt == "" {
		errs = append(errs, errors.New("base_system_prompt must not be empty"))
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature %v must be in [0, 2]", a.Temperature))
	}
	if a.IVRLoopThreshold != 0 && (a.IVRLoopThreshold <= 0 || a.IVRLoopThreshold > 1) {
		errs = append(errs, fmt.Errorf("ivr_loop_threshold %v must be in (0, 1]", a.IVRLoopThreshold))
	}
	for i, tool := range a.EnabledTools {
		if !knownTools[tool] {
			errs = append(errs, fmt.Errorf("enabled_tools[%d]: unknown tool %q", i, tool))
		}
	}
	if a.Timezone != "" {
		if _, err := time.LoadLocation(a.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("timezone %q is not a valid IANA zone", a.Timezone))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// ValidateCampaign checks a [Campaign] for required fields and sane pacing.
//
// Rules:
//   - Type must be a recognised campaign type.
//   - At least one sending number must be configured.
//   - MessagesPerMinute must be positive.
//   - MaxFollowUps and FollowUpDelayHours must be non-negative.
//   - A sending window's hours must satisfy 0 ≤ start < end ≤ 24 and its
//     timezone must be loadable.
func ValidateCampaign(c Campaign) error {
	var errs []error

	if !c.Type.IsValid() {
		errs = append(errs, fmt.Errorf("type %q is not recognised", c.Type))
	}
	if len(c.FromNumbers) == 0 {
		errs = append(errs, errors.New("at least one from_number is required"))
	}
	if c.MessagesPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("messages_per_minute %d must be positive", c.MessagesPerMinute))
	}
	if c.MaxFollowUps < 0 {
		errs = append(errs, fmt.Errorf("max_follow_ups %d must be non-negative", c.MaxFollowUps))
	}
	if c.FollowUpDelayHours < 0 {
		errs = append(errs, fmt.Errorf("follow_up_delay_hours %d must be non-negative", c.FollowUpDelayHours))
	}

	if w := c.SendingHours; w != nil {
		if w.StartHour < 0 || w.EndHour > 24 || w.StartHour >= w.EndHour {
			errs = append(errs, fmt.Errorf("sending window %d-%d is not a valid hour range", w.StartHour, w.EndHour))
		}
		if _, err := time.LoadLocation(w.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("sending window timezone %q is not a valid IANA zone", w.Timezone))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
