package chat

// Turn roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message attributed to a role in a prompt. Immutable once
// created.
type Turn struct {
	Role    string
	Content string
}
