package think

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// Some models write their reasoning inline, introduced by a stock phrase and
// ending at a blank line or a concluding phrase. This is a heuristic and will
// miss (or misfire on) plenty of real output.
var reasoningPatterns = []*regexp2.Regexp{
	regexp2.MustCompile(`Let me think about this step by step[.:]\s*([\s\S]*?)(?=\n\n|\nBased on|$)`, regexp2.IgnoreCase),
	regexp2.MustCompile(`I need to consider[.:]\s*([\s\S]*?)(?=\n\n|\nTherefore|$)`, regexp2.IgnoreCase),
	regexp2.MustCompile(`First, let me analyze[.:]\s*([\s\S]*?)(?=\n\n|\nIn conclusion|$)`, regexp2.IgnoreCase),
	regexp2.MustCompile(`Thinking through this[.:]\s*([\s\S]*?)(?=\n\n|\nSo|$)`, regexp2.IgnoreCase),
}

// DetectReasoning looks for an inline reasoning passage in text and returns
// it. The text itself is left alone; callers decide whether to show both.
func DetectReasoning(text string) (string, bool) {
	for _, re := range reasoningPatterns {
		m, err := re.FindStringMatch(text)
		if err != nil || m == nil {
			continue
		}
		g := m.GroupByNumber(1)
		if g == nil {
			continue
		}
		if reasoning := strings.TrimSpace(g.String()); reasoning != "" {
			return reasoning, true
		}
	}
	return "", false
}
