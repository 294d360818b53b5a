package analyzer

import (
	"fmt"
	"strings"
)

const systemPrompt = `You analyze short texts scraped from the web.
Respond with a single JSON object and nothing else, using exactly these keys:
  "summary":   one or two plain sentences describing the text,
  "sentiment": one of "positive", "neutral" or "negative",
  "keywords":  an array of at most %d short keywords or key phrases.`

func buildSystemPrompt(maxKeywords int) string {
	return fmt.Sprintf(systemPrompt, maxKeywords)
}

func buildUserPrompt(content string) string {
	var b strings.Builder
	b.WriteString("Analyze the following text.\n\n<text>\n")
	b.WriteString(content)
	b.WriteString("\n</text>")
	return b.String()
}
