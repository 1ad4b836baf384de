package responder

import (
	"strings"
)

// Prompt is a system prompt: an identity line, fixed rules, and optional
// guidance appended after the rules.
type Prompt struct {
	identity string
	rules    []string
	guidance []string
}

func NewPrompt(identity string, rules ...string) *Prompt {
	return &Prompt{identity: identity, rules: rules}
}

// With returns a copy of the prompt with extra guidance. The rules are kept
// ahead of it so guidance cannot displace them.
func (p *Prompt) With(guidance ...string) *Prompt {
	out := *p
	out.guidance = append(append([]string(nil), p.guidance...), guidance...)
	return &out
}

func (p *Prompt) String() string {
	var b strings.Builder
	b.WriteString(p.identity)

	writeList := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		b.WriteString("\n\n")
		b.WriteString(title)
		b.WriteString(":")
		for _, item := range items {
			b.WriteString("\n- ")
			b.WriteString(item)
		}
	}
	writeList("Rules (always apply)", p.rules)
	writeList("Additional guidance", p.guidance)
	return b.String()
}

var chatPrompt = NewPrompt(
	"You are Wayfinder, an assistant that helps people find places nearby and plan around them.",
	"Respond in the same language as the question.",
	"Keep answers short and concrete.",
	"When recommending places, name them and say briefly why they fit.",
	"If a location is needed and was not given, ask for it.",
)

var searchPrompt = NewPrompt(
	"You turn a place search into practical advice.",
	`Reply with a JSON object of the form {"summary": string, "tips": [string]}.`,
	`"summary" is one sentence describing what to look for.`,
	`"tips" holds three to five short, concrete tips.`,
)

// ChatPrompt instructs the model for conversational turns.
func ChatPrompt() *Prompt {
	return chatPrompt
}

// SearchPrompt instructs the model to turn a place search into tips.
func SearchPrompt() *Prompt {
	return searchPrompt
}
