package answer

import "strings"

// Instruction keeps answers grounded in the retrieved content.
const Instruction = "You are an assistant answering questions strictly using the provided context. " +
	"Be precise, concise, and direct. Avoid unnecessary explanations. " +
	"If the answer is not present, say you do not know."

// BuildSystemPrompt wraps the retrieved context in delimiters after the
// instruction.
func BuildSystemPrompt(contextText string) string {
	var sb strings.Builder
	sb.WriteString(Instruction)
	sb.WriteString("\n===\n")
	sb.WriteString(strings.TrimSpace(contextText))
	sb.WriteString("\n===")
	return sb.String()
}
