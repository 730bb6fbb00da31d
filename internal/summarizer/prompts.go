package summarizer

import (
	"fmt"
	"strings"
	"text/template"
)

const (
	systemPrompt = `You are a careful document analyst.
Summaries must be faithful to the source: never invent facts,
keep critical context (names, dates, numbers, conclusions),
and answer in the same language as the source text.`

	singleDocumentPrompt = `Write a comprehensive summary of the document below.

Rules:
- Start with one sentence stating what the document is about.
- Cover the main points, key findings and conclusions.
- Keep important figures, names and dates.
- Use short paragraphs or bullet points where they help readability.
- Do not add information that is not in the document.

Document:
{{.Text}}

Summary:`

	multiDocumentPrompt = `Below are {{.DocumentCount}} documents, each introduced by a labeled header.
Write one integrated summary that covers all of them.

Rules:
- Open with the overall theme connecting the documents.
- Summarize the key points of each document, referring to it by name.
- Point out agreements, differences and complementary information.
- Finish with the combined conclusions.
- Do not add information that is not in the documents.

Documents:
{{.Text}}

Integrated summary:`

	mapPrompt = `Write a concise summary of the following excerpt
(part {{.Part}} of {{.Total}} of a longer document).
Keep only the main ideas and critical facts of this excerpt.

Excerpt:
{{.Text}}

Concise summary:`

	reducePrompt = `The following are summaries of consecutive parts of one document, in order.
Combine them into a single coherent summary of the whole document.

Rules:
- Remove repetition between parts.
- Preserve the order of ideas and the key facts.
- Do not add information that is not in the summaries.

Part summaries:
{{.Text}}

Consolidated summary:`

	hierarchicalPrompt = `The following are individual summaries of {{.DocumentCount}} documents,
each introduced by a labeled header.
Write one integrated summary that synthesizes them.

Rules:
- Open with the overall theme connecting the documents.
- Highlight common themes, differences and complementary findings.
- Refer to documents by name when attributing specific points.
- Finish with the combined conclusions.

Document summaries:
{{.Text}}

Integrated summary:`
)

var (
	singleDocumentTemplate = template.Must(template.New("single").Parse(singleDocumentPrompt))
	multiDocumentTemplate  = template.Must(template.New("multiple").Parse(multiDocumentPrompt))
	mapTemplate            = template.Must(template.New("map").Parse(mapPrompt))
	reduceTemplate         = template.Must(template.New("reduce").Parse(reducePrompt))
	hierarchicalTemplate   = template.Must(template.New("hierarchical").Parse(hierarchicalPrompt))
)

type promptData struct {
	Text          string
	DocumentCount int
	Part          int
	Total         int
}

func renderPrompt(t *template.Template, data promptData) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}

	return b.String(), nil
}

// documentHeader labels one source inside a combined prompt.
func documentHeader(index int, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Document %d", index)
	}

	return fmt.Sprintf("=== Document %d: %s ===", index, name)
}

func joinLabeled(names []string, texts []string) string {
	var b strings.Builder
	for i := range texts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(documentHeader(i+1, names[i]))
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(texts[i]))
	}

	return b.String()
}
