// Package prompt assembles the text prompts sent to the generation model.
// Assembly is pure string work: callers resolve history, retrieval, and
// truncation policy before anything reaches this package, so the same inputs
// always produce the same prompt.
package prompt

import (
	"fmt"
	"strings"

	"github.com/eblahq/ragchat/internal/rag"
)

// ragSystemPrompt instructs the model to answer strictly from the supplied
// context. The wording is part of the service contract — answer quality
// evaluations depend on it, so change it deliberately.
const ragSystemPrompt = `You are an intelligent assistant for EBLA Computer Consultancy.
Your goal is to answer user questions accurately based ONLY on the provided context.
If the answer is not in the context, say "I don't have enough information to answer that."

Instructions:
1. Use the provided Context to answer the question.
2. Use the Chat History to understand the conversation flow (e.g., if the user says "it", know what they refer to).
3. Be concise, professional, and helpful.
4. Do not hallucinate or make up information.
`

// BuildRAGPrompt assembles the full chat prompt from the user query, the
// retrieved context documents, and pre-formatted history text. Sections
// always appear in the same order: system instructions, chat history,
// context, question. Empty history or an empty document list keeps its
// section delimiters so the model sees a consistent layout.
func BuildRAGPrompt(query string, docs []rag.Document, historyText string) string {
	numbered := make([]string, 0, len(docs))
	for i, doc := range docs {
		numbered = append(numbered, fmt.Sprintf("Source %d:\n%s", i+1, doc.Content))
	}
	contextStr := strings.Join(numbered, "\n\n")

	return fmt.Sprintf(`%s

---
Chat History:
%s
---

---
Context Information:
%s
---

User Question: %s

Answer:`, ragSystemPrompt, historyText, contextStr, query)
}

// BuildSummaryPrompt assembles the prompt that condenses a conversation
// transcript into a short summary.
func BuildSummaryPrompt(conversationText string) string {
	return fmt.Sprintf(`Summarize the following conversation concisely in 2-3 sentences:

%s

Summary:`, conversationText)
}
