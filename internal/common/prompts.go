package common

import "strings"

const (
	DoneMarker = "[DONE]"

	DoneInstruction = `Follow this output-termination rule strictly:

1. When your answer is complete, output a line containing only: [DONE]
2. The [DONE] marker means the answer is fully finished; it is required.
3. The system only treats the answer as complete once [DONE] has been emitted.
4. If the answer is cut off, the system will ask you to continue the remainder.
5. Every answer, regardless of length, must end with the [DONE] marker.

Example:
your answer content...
more answer content...
[DONE]

Note: [DONE] must be on its own line with no other characters before it.`

	ContinuationPrompt = `Continue the output exactly from where it was cut off.

Important:
1. Do not repeat content already output.
2. Continue directly, without any preamble or explanation.
3. Once the full content is complete, output a final line containing only: [DONE]
4. The [DONE] marker means the answer is fully finished; it is required.

Continue now:`
)

var doneMarkerLower = strings.ToLower(DoneMarker)

// EqualDoneMarker returns true when value equals the done marker ignoring case and surrounding whitespace.
func EqualDoneMarker(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), DoneMarker)
}

// HasDoneMarker reports whether the done marker appears anywhere in text, ignoring case.
func HasDoneMarker(text string) bool {
	if text == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), doneMarkerLower)
}

// StripDoneMarker removes standalone done-marker lines from text, comparing case-insensitively.
func StripDoneMarker(text string) string {
	if text == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if EqualDoneMarker(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
