package usecase

import (
	"fmt"
	"strings"

	"github.com/ValentinOzeel/RAGalactic/internal/core/domain"
)

const retrievalOnlyInstructions = `You are an AI assistant in a retrieval-augmented system that lets users converse with their PDF documents.
Answer strictly from the document excerpts provided below and the chat history; never use or propose to use your own knowledge base.
The citation line listing the source documents is produced by the system, so do not repeat it.
If the excerpts do not let you answer specifically and accurately, respond with exactly: '` + domain.RefusalAnswer + `' and nothing else.
Deliver clear, accurate and thorough answers in a professional and courteous tone.`

const retrievalPlusBackgroundInstructions = `You are an AI assistant in a retrieval-augmented system that lets users converse with their PDF documents.
Ground your answers in the document excerpts provided below and the chat history.
The citation line listing the source documents is produced by the system, so do not repeat it.
If the excerpts do not cover the question, you may answer from your own pre-existing knowledge, but you must state explicitly that the answer is based on pre-existing knowledge rather than the documents.
Deliver clear, accurate and thorough answers in a professional and courteous tone.`

func policyInstructions(policy domain.KnowledgePolicy) string {
	if policy == domain.PolicyRetrievalPlusBackground {
		return retrievalPlusBackgroundInstructions
	}
	return retrievalOnlyInstructions
}

// buildSystemPrompt assembles the policy instructions plus the retrieved
// context for one turn.
func buildSystemPrompt(policy domain.KnowledgePolicy, units []domain.RetrievedUnit) string {
	var b strings.Builder
	b.WriteString(policyInstructions(policy))
	b.WriteString("\n\nRelevant document excerpts:\n")
	if len(units) == 0 {
		b.WriteString("(none)\n")
		return b.String()
	}
	for _, unit := range units {
		fmt.Fprintf(&b, "[Excerpt from document] file=%s page=%d score=%.3f\n%s\n\n",
			unit.FileName, unit.Page, unit.Score, unit.Text)
	}
	return b.String()
}

// citationLine derives the leading "Documents used:" segment from retrieved
// unit metadata, deduplicated in retrieval order.
func citationLine(units []domain.RetrievedUnit) (string, []string) {
	seen := make(map[string]struct{}, len(units))
	names := make([]string, 0, len(units))
	for _, unit := range units {
		if unit.FileName == "" {
			continue
		}
		if _, ok := seen[unit.FileName]; ok {
			continue
		}
		seen[unit.FileName] = struct{}{}
		names = append(names, unit.FileName)
	}
	if len(names) == 0 {
		return "", nil
	}
	return "Documents used: " + strings.Join(names, ", "), names
}

// isRefusal matches an answer that opens with the refusal phrase. A prefix
// check keeps answers that merely quote the phrase intact.
func isRefusal(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), domain.RefusalAnswer)
}
