package content

// Role identifies the author of a message. Provider-specific synonyms like
// "developer" are mapped by adapters, never stored here.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// A Message is one chat turn: a role plus an ordered list of content parts.
// Conversation history is an append-only sequence of messages.
type Message struct {
	Role    Role   `json:"role"`
	Content []Part `json:"content"`
}

// SystemMessage returns a system message with a single text part.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: []Part{TextPart(text)}}
}

// UserMessage returns a user message with a single text part.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []Part{TextPart(text)}}
}

// NewUserMessage returns a user message from arbitrary parts.
func NewUserMessage(parts ...Part) Message {
	return Message{Role: RoleUser, Content: parts}
}

// NewAssistantMessage returns an assistant message from arbitrary parts.
func NewAssistantMessage(parts ...Part) Message {
	return Message{Role: RoleAssistant, Content: parts}
}

// Text returns the concatenation of all text parts in the message.
func (m Message) Text() string {
	var out string
	for _, part := range m.Content {
		if part.Type == KindText {
			out += part.Text
		}
	}
	return out
}

// ToolCalls returns the tool call blocks in the message, in order.
func (m Message) ToolCalls() []ToolCallBlock {
	var calls []ToolCallBlock
	for _, part := range m.Content {
		if part.Type == KindToolCall && part.ToolCall != nil {
			calls = append(calls, *part.ToolCall)
		}
	}
	return calls
}

// ToolOutputs returns the tool output blocks in the message, in order.
func (m Message) ToolOutputs() []ToolOutputBlock {
	var outputs []ToolOutputBlock
	for _, part := range m.Content {
		if part.Type == KindToolOutput && part.ToolOutput != nil {
			outputs = append(outputs, *part.ToolOutput)
		}
	}
	return outputs
}

// Thoughts returns the reasoning blocks in the message, in order.
func (m Message) Thoughts() []ThoughtBlock {
	var thoughts []ThoughtBlock
	for _, part := range m.Content {
		if part.Type == KindThought && part.Thought != nil {
			thoughts = append(thoughts, *part.Thought)
		}
	}
	return thoughts
}
