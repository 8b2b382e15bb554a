package chat

import (
	"fmt"
	"strings"
)

// Model names one of the remote model endpoints.
type Model string

const (
	Gemini   Model = "Gemini"
	DeepSeek Model = "DeepSeek"
)

var Models = []Model{Gemini, DeepSeek}

// ParseModel matches name against the known models, ignoring case.
func ParseModel(name string) (Model, error) {
	for _, m := range Models {
		if strings.EqualFold(strings.TrimSpace(name), string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown model %q (expected one of %v)", name, Models)
}

// Heuristic reports whether this model writes its reasoning inline instead of
// in a thinking block.
func (m Model) Heuristic() bool {
	return m == Gemini
}
