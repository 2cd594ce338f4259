package chat

import "strings"

// displayNamePlaceholder is substituted with the requesting user's display
// name when rendering the system prompt.
const displayNamePlaceholder = "[user]"

// Assembler builds the ordered prompt sent to the model: rendered system
// prompt, the most recent HistoryLimit turns, then the new user turn.
// Function declarations are not part of the turn list; the inference
// client attaches them to the request itself.
type Assembler struct {
	SystemPrompt  string
	HistoryLimit  int
	ContextWindow int
}

// Assemble returns the final ordered turn list for one generation.
func (a *Assembler) Assemble(displayName string, history []Turn, userMsg string) []Turn {
	if displayName == "" {
		displayName = "user"
	}
	system := strings.ReplaceAll(a.SystemPrompt, displayNamePlaceholder, displayName)

	recent := history
	if a.HistoryLimit > 0 && len(recent) > a.HistoryLimit {
		recent = recent[len(recent)-a.HistoryLimit:]
	}

	turns := make([]Turn, 0, len(recent)+2)
	turns = append(turns, Turn{Role: RoleSystem, Content: system})
	turns = append(turns, recent...)
	turns = append(turns, Turn{Role: RoleUser, Content: userMsg})
	return turns
}

// OverBudget reports whether the estimated prompt size exceeds the
// configured context window. Estimation uses the rough chars/4 heuristic;
// the result is advisory, the server does the authoritative trimming.
func (a *Assembler) OverBudget(turns []Turn) (int, bool) {
	if a.ContextWindow <= 0 {
		return 0, false
	}
	total := 0
	for _, t := range turns {
		total += estimateTokens(t.Content)
	}
	return total, total > a.ContextWindow
}

func estimateTokens(text string) int {
	chars := len([]rune(text))
	if chars <= 0 {
		return 0
	}
	return (chars + 3) / 4
}
