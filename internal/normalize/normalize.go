// Package normalize flattens raw model responses into clean text.
//
// A model may answer with a plain string, with a sequence of typed content
// blocks, or with a string that is itself a printed block sequence. Every
// shape is reduced to one string and scrubbed of Markdown code fences
// before the result is used downstream.
package normalize

import "strings"

// Kind discriminates the three response shapes.
type Kind int

const (
	KindPlain Kind = iota
	KindBlocks
	KindEncoded
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindBlocks:
		return "blocks"
	case KindEncoded:
		return "encoded"
	}
	return "unknown"
}

// BlockTypeText is the discriminator of blocks that carry answer text.
const BlockTypeText = "text"

// Block is one typed unit of a structured model response.
type Block struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Raw is a model response in one of the three supported shapes.
type Raw struct {
	Kind   Kind
	Text   string
	Blocks []Block
}

// Plain wraps a string that must be used as-is.
func Plain(s string) Raw { return Raw{Kind: KindPlain, Text: s} }

// FromBlocks wraps an already structured block sequence.
func FromBlocks(blocks []Block) Raw { return Raw{Kind: KindBlocks, Blocks: blocks} }

// Encoded wraps a string that serializes a block sequence.
func Encoded(s string) Raw { return Raw{Kind: KindEncoded, Text: s} }

// Classify picks the shape of a bare string returned by a backend.
// Strings that open like a list of objects and mention the type
// discriminator are treated as encoded block sequences.
func Classify(s string) Raw {
	if looksEncoded(s) {
		return Encoded(s)
	}
	return Plain(s)
}

func looksEncoded(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "[{") && strings.Contains(s, "type")
}

// DefaultFenceTag is the language tag stripped from opening fences when
// none is configured.
const DefaultFenceTag = "python"

const fence = "```"

// Normalizer reduces Raw responses to fence-free text.
type Normalizer struct {
	FenceTag string
}

// New returns a Normalizer that strips "```<fenceTag>" openers. An empty
// tag falls back to DefaultFenceTag.
func New(fenceTag string) *Normalizer {
	fenceTag = strings.ToLower(strings.TrimSpace(fenceTag))
	if fenceTag == "" {
		fenceTag = DefaultFenceTag
	}
	return &Normalizer{FenceTag: fenceTag}
}

// Normalize flattens raw and strips code fences. A malformed encoded
// sequence is handled as plain text; Normalize never fails.
func (n *Normalizer) Normalize(raw Raw) string {
	var text string
	switch raw.Kind {
	case KindBlocks:
		text = JoinText(raw.Blocks)
	case KindEncoded:
		if blocks, err := ParseBlocks(raw.Text); err == nil {
			text = JoinText(blocks)
		} else {
			text = raw.Text
		}
	default:
		text = raw.Text
	}
	return n.StripFences(text)
}

// StripFences removes every tagged opening fence, then every bare fence,
// and trims surrounding whitespace.
func (n *Normalizer) StripFences(text string) string {
	tag := n.FenceTag
	if tag == "" {
		tag = DefaultFenceTag
	}
	text = strings.ReplaceAll(text, fence+tag, "")
	text = strings.ReplaceAll(text, fence, "")
	return strings.TrimSpace(text)
}

// JoinText concatenates the text of every text block in order.
func JoinText(blocks []Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == BlockTypeText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}
