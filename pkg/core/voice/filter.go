package voice

import (
	"regexp"
	"strings"

	"github.com/sanchita-suni/Calyx/pkg/core/crisis/signal"
)

// Phrases that claim capabilities the system does not have. Matches are
// removed before any text reaches synthesis.
var hallucinationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:I'm |I am |I will |I can |I'll |let me |going to )(?:track|locate|find|trace|ping|monitor|watch|see|view|access|hack|unlock|control|dispatch|send (?:police|ambulance|help)|call (?:911|police|ambulance|emergency services))`),
	regexp.MustCompile(`(?i)(?:tracking|locating|finding|tracing|pinging|monitoring|dispatching|sending help)`),
	regexp.MustCompile(`(?i)(?:I've |I have )(?:sent|dispatched|called|alerted) (?:police|ambulance|emergency services|911|help)`),
	regexp.MustCompile(`(?i)authorities (?:are|have been) (?:notified|alerted|dispatched|on (?:the |their )?way)`),
	regexp.MustCompile(`(?i)help is on the way`),
	regexp.MustCompile(`(?i)I(?:'m| am) (?:alerting|contacting|calling) (?:emergency services|police|911)`),
}

var (
	residualMode   = regexp.MustCompile(`(?i)\[?MODE:\w+(?::\w+)?\]?\s*`)
	residualSignal = regexp.MustCompile(`(?i)\[?SIGNAL:\w+\]?\s*`)

	multiSpace       = regexp.MustCompile(`\s+`)
	spaceBeforePunct = regexp.MustCompile(`\s+([.,!?])`)
)

// FilterHallucinations strips false capability claims and tidies the
// leftover whitespace. Text that was nothing but a claim comes back empty.
func FilterHallucinations(text string) string {
	out := text
	for _, re := range hallucinationPatterns {
		out = re.ReplaceAllString(out, "")
	}
	out = strings.TrimSpace(multiSpace.ReplaceAllString(out, " "))
	return spaceBeforePunct.ReplaceAllString(out, "$1")
}

// CleanSegment prepares one segment for synthesis. It reports false when
// nothing speakable is left.
func CleanSegment(text string) (string, bool) {
	clean := signal.StripTags(text)
	clean = residualMode.ReplaceAllString(clean, "")
	clean = strings.TrimSpace(residualSignal.ReplaceAllString(clean, ""))
	if len(clean) < 2 {
		return "", false
	}
	clean = FilterHallucinations(clean)
	if len(clean) < 2 {
		return "", false
	}
	return clean, true
}
