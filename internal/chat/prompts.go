package chat

import (
	"fmt"
	"strings"
)

// briefMessageWords is the word count at or below which replies are kept short.
const briefMessageWords = 2

// PromptSection is one titled block of tenant content.
type PromptSection struct {
	Title string
	Body  string
}

// PromptParams contains the inputs for the reply system prompt
type PromptParams struct {
	Campaigns  []PromptSection // active campaigns
	Templates  []PromptSection // templates enabled for the model
	Message    string          // current inbound message
	NameKnown  bool
	PhoneKnown bool
}

// Prompt is an assembled system instruction plus what was derived for it.
type Prompt struct {
	System   string
	Language Language
	Brief    bool
}

// SystemPrompt assembles the reply instruction for one inbound message.
func SystemPrompt(params PromptParams) Prompt {
	lang := DetectLanguage(params.Message)
	brief := IsBriefMessage(params.Message)

	var b strings.Builder
	b.WriteString("You are the company's assistant answering customers in Instagram direct messages.\n\n")

	b.WriteString("Campaign information:\n")
	if len(params.Campaigns) == 0 {
		b.WriteString("(no active campaigns)\n")
	}
	for _, c := range params.Campaigns {
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", strings.TrimSpace(c.Title), strings.TrimSpace(c.Body))
	}

	if len(params.Templates) > 0 {
		b.WriteString("\nCompany configuration. Follow these rules, they are also your goals:\n")
		for _, t := range params.Templates {
			fmt.Fprintf(&b, "[%s]\n%s\n\n", strings.TrimSpace(t.Title), strings.TrimSpace(t.Body))
		}
	}

	fmt.Fprintf(&b, "\nReply language:\n%s\n", LanguageInstruction(lang))

	b.WriteString("\nKnown customer details:\n")
	fmt.Fprintf(&b, "- full_name_known: %t. When true, never ask for the customer's name.\n", params.NameKnown)
	fmt.Fprintf(&b, "- phone_known: %t. When true, never ask for the customer's phone number.\n", params.PhoneKnown)

	b.WriteString("\nRules:\n")
	b.WriteString("- Answer only what the customer asked. Never send all the information at once.\n")
	b.WriteString("- Base every answer on the campaign information above and stay on topic.\n")
	b.WriteString("- Ask for a missing name or phone number at most once each, and only after the customer shows interest in buying.\n")
	b.WriteString("- Greet only once. Never repeat a greeting later in the conversation.\n")
	b.WriteString("- Keep replies short, professional and clear.\n")
	fmt.Fprintf(&b, "- If the question is not covered by the campaign information, reply exactly: %q\n", FallbackText(lang))

	if brief {
		b.WriteString("\nThe customer's message is very short. Keep the reply brief and prefer one natural follow-up question over a long answer.\n")
	}

	return Prompt{System: b.String(), Language: lang, Brief: brief}
}

// IsBriefMessage reports whether text has two words or fewer.
func IsBriefMessage(text string) bool {
	return len(strings.Fields(text)) <= briefMessageWords
}
