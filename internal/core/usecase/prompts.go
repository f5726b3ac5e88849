package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

const groundedSystemPrompt = `You are an assistant that answers questions about one document the user selected.
Answer only from the document context below. If the context does not contain the answer, say so directly.
Quote dates, amounts and deadlines exactly as written. Answer in the language of the question.`

const generalSystemPrompt = `You are a helpful assistant for questions about personal documents such as notices, bills and contracts.
No document is selected, so answer from general knowledge and suggest selecting a document for specific details.
Answer in the language of the question.`

const analysisSystemPrompt = `You analyze documents and return strict JSON only, no markdown.`

func buildGroundedSystem(doc *domain.Document, chunks []domain.GroundingChunk) string {
	var b strings.Builder
	b.WriteString(groundedSystemPrompt)
	b.WriteString("\n\nDocument: ")
	b.WriteString(doc.Filename)
	if doc.Analysis != nil && doc.Analysis.DocumentType != "" {
		b.WriteString(" (type: ")
		b.WriteString(doc.Analysis.DocumentType)
		b.WriteString(")")
	}
	b.WriteString("\n\nContext:\n")
	for _, chunk := range chunks {
		fmt.Fprintf(&b, "[%d]\n%s\n\n", chunk.Index+1, chunk.Snippet)
	}
	return b.String()
}

func buildAnalysisPrompt(doc *domain.Document, content, forceType string) string {
	const maxSnippet = 4000
	snippet := truncateRunes(content, maxSnippet)

	typeHint := "Infer document_type from the content (tax, medical, contract, notice, insurance, bill or general)."
	if forceType != "" {
		typeHint = fmt.Sprintf("The document_type is %q; analyze it as that type.", forceType)
	}

	return `Analyze the document and return a JSON object with keys:
summary (string, 2-3 sentences), document_type (string), importance ("high", "medium" or "low"),
key_points (array of strings), actions (array of objects with action, deadline "YYYY-MM-DD" or null, amount number or null, method string or null),
and optionally one of tax_details, prescription_details, contract_details, notice_details, insurance_details (object).
No extra keys. ` + typeHint + `

Filename: ` + doc.Filename + `

Document:
` + snippet
}
