package chat

import (
	"strings"
	"text/template"

	"docchat/src/core/session"
)

// NoHistoryMarker is emitted in place of the history section when the
// session has no prior messages.
const NoHistoryMarker = "No previous conversation."

const answerWithContextTmpl = `You are a helpful AI assistant. Use the following context from the uploaded documents to answer the user's question. If the context doesn't contain relevant information, use your general knowledge but mention that the answer is not from the uploaded documents.

Context from documents:
{{.Context}}

Previous conversation:
{{.History}}

User question: {{.Question}}

Please provide a helpful and accurate response:`

const answerGeneralTmpl = `You are a helpful AI assistant. No specific documents have been uploaded yet, so please answer based on your general knowledge.

Previous conversation:
{{.History}}

User question: {{.Question}}

Please provide a helpful response:`

var (
	withContextPrompt = template.Must(template.New("with_context").Parse(answerWithContextTmpl))
	generalPrompt     = template.Must(template.New("general").Parse(answerGeneralTmpl))
)

type promptData struct {
	Context  string
	History  string
	Question string
}

// buildPrompt renders the deterministic generation prompt. Retrieved chunk
// texts go in verbatim; history lines are "Role: content".
func buildPrompt(question string, contextChunks []string, history []session.Message) (string, error) {
	data := promptData{
		Context:  strings.Join(contextChunks, "\n\n"),
		History:  formatHistory(history),
		Question: question,
	}

	tmpl := generalPrompt
	if len(contextChunks) > 0 {
		tmpl = withContextPrompt
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func formatHistory(history []session.Message) string {
	if len(history) == 0 {
		return NoHistoryMarker
	}

	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, capitalize(m.Role)+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
