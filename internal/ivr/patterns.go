package ivr

import "regexp"

// Pattern sets for remote-party classification. The three sets are curated
// to be mutually exclusive in intent: exclusive-IVR phrases are DTMF prompts
// that no human says, error phrases are menu retry prompts, and human
// phrases are conversational markers that menus never produce.

// exclusiveIVRPatterns force an IVR classification regardless of any other
// matches.
var exclusiveIVRPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bpress\s+(\d|one|two|three|four|five|six|seven|eight|nine|zero|pound|star)\b`),
	regexp.MustCompile(`(?i)\bdial\s+(\d|one|two|three|four|five|six|seven|eight|nine|zero)\b`),
	regexp.MustCompile(`(?i)\bfor\s+[\w\s]{1,40},?\s+press\b`),
	regexp.MustCompile(`(?i)\benter\s+(your|the)\s+[\w\s]{0,20}extension\b`),
	regexp.MustCompile(`(?i)\benter\s+your\s+(account|phone|member)\s+number\b`),
	regexp.MustCompile(`(?i)\bfollowed\s+by\s+the\s+pound\b`),
	regexp.MustCompile(`(?i)\bmain\s+menu\b`),
	regexp.MustCompile(`(?i)\bpara\s+espa(ñ|n)ol\b`),
	regexp.MustCompile(`(?i)\busing\s+your\s+(telephone|touch-?tone)\s+keypad\b`),
}

// ivrErrorPatterns are menu retry prompts; they also force IVR.
var ivrErrorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bnot\s+a\s+valid\s+extension\b`),
	regexp.MustCompile(`(?i)\binvalid\s+(selection|entry|input|option)\b`),
	regexp.MustCompile(`(?i)\b(i\s+)?did\s+not\s+(receive|recognize|understand)\s+(your|that)\b`),
	regexp.MustCompile(`(?i)\bplease\s+try\s+again\b`),
	regexp.MustCompile(`(?i)\bthat\s+is\s+not\s+a\s+valid\b`),
}

// ivrErrorExclusions suppress an error match; "try again later" is a human
// phrase, not a menu retry.
var ivrErrorExclusions = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\btry\s+again\s+later\b`),
	regexp.MustCompile(`(?i)\bcall\s+(back|us)\s+later\b`),
}

// humanPatterns mark live conversation.
var humanPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bhow\s+(can|may)\s+i\s+help\b`),
	regexp.MustCompile(`(?i)\bhow\s+(can|may)\s+i\s+assist\b`),
	regexp.MustCompile(`(?i)\bthis\s+is\s+\w+\s+speaking\b`),
	regexp.MustCompile(`(?i)\bthis\s+is\s+\w+,?\s+how\b`),
	regexp.MustCompile(`(?i)\bwhat\s+can\s+i\s+do\s+for\s+you\b`),
	regexp.MustCompile(`(?i)^\s*(hello|hi|hey)\b[^.]{0,20}$`),
	regexp.MustCompile(`(?i)\b(yeah|yep|yes|okay|ok|sure|gotcha|no\s+problem|sounds\s+good|of\s+course)\b`),
	regexp.MustCompile(`(?i)\bone\s+(second|sec|moment)\b`),
	regexp.MustCompile(`(?i)\bspeaking\s*[.!]?\s*$`),
	regexp.MustCompile(`(?i)\bum+\b|\buh+\b`),
}

// voicemailPatterns mark a recording prompt. Only honoured when no IVR
// pattern matched in the same transcript.
var voicemailPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bleave\s+(a|your)\s+message\b`),
	regexp.MustCompile(`(?i)\bat\s+the\s+beep\b`),
	regexp.MustCompile(`(?i)\bafter\s+the\s+(tone|beep)\b`),
	regexp.MustCompile(`(?i)\bleave\s+your\s+name\s+and\s+(phone\s+)?number\b`),
	regexp.MustCompile(`(?i)\b(is|are)\s+not\s+available\s+(right\s+now|at\s+the\s+moment|to\s+take\s+your\s+call)\b`),
	regexp.MustCompile(`(?i)\bunable\s+to\s+(take|answer)\s+your\s+call\b`),
	regexp.MustCompile(`(?i)\byou('ve|\s+have)\s+reached\s+the\s+voice\s*mail\b`),
	regexp.MustCompile(`(?i)\brecord\s+your\s+message\b`),
}

func countMatches(patterns []*regexp.Regexp, text string) int {
	n := 0
	for _, p := range patterns {
		if p.MatchString(text) {
			n++
		}
	}
	return n
}

func anyMatch(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
