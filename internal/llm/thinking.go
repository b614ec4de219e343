package llm

import (
	"regexp"
	"strings"

	"github.com/valpere/codeshift/internal/normalize"
)

const partReasoning = "reasoning"

// Reasoning models served as plain text open their answer with tagged
// thinking sections. RE2 has no backreferences, so each tag is listed.
var (
	leadingThinkingRe = regexp.MustCompile(
		`(?is)^\s*(?:<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>)`,
	)
	// An opened tag with no closing tag means the model was cut off
	// mid-thought.
	truncatedThinkingRe = regexp.MustCompile(`(?is)^\s*(?:<thinking>|<think>|<reasoning>|<reflection>)`)
)

// splitThinking separates leading thinking sections from the answer.
func splitThinking(s string) (thinking []string, answer string) {
	answer = s
	for {
		loc := leadingThinkingRe.FindStringIndex(answer)
		if loc == nil {
			break
		}
		thinking = append(thinking, strings.TrimSpace(answer[:loc[1]]))
		answer = answer[loc[1]:]
	}
	if truncatedThinkingRe.MatchString(answer) {
		return append(thinking, strings.TrimSpace(answer)), ""
	}
	return thinking, answer
}

// classifyText is normalize.Classify for text-only backends. Thinking
// sections become non-text blocks so normalization drops them.
func classifyText(s string) normalize.Raw {
	thinking, answer := splitThinking(s)
	if len(thinking) == 0 {
		return normalize.Classify(s)
	}
	if raw := normalize.Classify(answer); raw.Kind == normalize.KindEncoded {
		return raw
	}

	blocks := make([]normalize.Block, 0, len(thinking)+1)
	for _, t := range thinking {
		blocks = append(blocks, normalize.Block{Type: partReasoning, Text: t})
	}
	blocks = append(blocks, normalize.Block{Type: normalize.BlockTypeText, Text: strings.TrimSpace(answer)})
	return normalize.FromBlocks(blocks)
}
