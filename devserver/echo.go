package devserver

import (
	"context"
	"fmt"
	"strings"
)

// Echo answers every prompt by repeating it, preceded by a short thinking
// block, split into word-sized tokens.
var Echo Responder = ResponderFunc(func(ctx context.Context, threadID, model, prompt string) []string {
	tokens := []string{"<think>", fmt.Sprintf("The user sent %d characters to %s.", len(prompt), model), "</think>"}
	tokens = append(tokens, "You said: ")
	tokens = append(tokens, strings.SplitAfter(prompt, " ")...)
	return tokens
})
