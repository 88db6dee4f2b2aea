package actions

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// fencePattern matches a fenced action block. The tag is either the
// language-specific "prof-<lang>-action" or the generic "prof-action".
// The body capture is non-greedy so that two fences in one reply are
// matched separately.
var fencePattern = regexp.MustCompile("```json:(?:prof-\\w+-action|prof-action)\\s*(\\{[\\s\\S]*?\\})\\s*```")

// Scanner finds new actions in a growing reply. Callers pass the whole
// accumulated text after every fragment; each fence is dispatched at most
// once no matter how often the text is rescanned.
//
// A Scanner is not safe for concurrent use. Use one per streamed reply.
type Scanner struct {
	watermark int
	logger    *zap.Logger
}

// NewScanner returns a Scanner with an empty watermark. logger may be nil.
func NewScanner(logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{watermark: -1, logger: logger}
}

// Scan returns the actions whose fence starts beyond the watermark and
// whose body decodes, in stream order.
//
// A body that is not yet valid JSON is skipped without moving the
// watermark, so it is tried again on the next call. A body that is valid
// JSON but not a known action moves the watermark and is dropped.
func (s *Scanner) Scan(accumulated string) []Match {
	var out []Match
	for _, loc := range fencePattern.FindAllStringSubmatchIndex(accumulated, -1) {
		start := loc[0]
		if start <= s.watermark {
			continue
		}

		body := accumulated[loc[2]:loc[3]]
		action, err := Decode(body)
		switch {
		case errors.Is(err, ErrIncomplete):
			continue
		case err != nil:
			s.logger.Debug("dropping invalid action", zap.Int("offset", start), zap.Error(err))
			s.watermark = start
			continue
		}

		s.watermark = start
		out = append(out, Match{Offset: start, Action: action})
	}
	return out
}

// Reset forgets all dispatched fences.
func (s *Scanner) Reset() {
	s.watermark = -1
}

// ScanAll decodes every action in a complete reply.
func ScanAll(text string) []Match {
	return NewScanner(nil).Scan(text)
}

// Strip removes complete action fences from text for display.
func Strip(text string) string {
	return strings.TrimSpace(fencePattern.ReplaceAllString(text, ""))
}
