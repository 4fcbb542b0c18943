package metadata

import (
	"fmt"
	"strings"
	"time"
)

// ReferenceDateLayout is how the reference date is shown to the model.
const ReferenceDateLayout = "2006-01-02"

const instructions = `You are an AI system tasked with analyzing meeting minutes to extract data.
1. Analyze the meeting minutes data provided within <input> tags and the meeting date within <date> tags.
2. Return a JSON response that complies with the provided schema, inside a single fenced block that starts with ` + "```json" + `.
3. If required fields are missing, return available fields with null for missing ones, and add an "error" field explaining why.
Example of a valid JSON response:
` + "```json" + `
{
  "metadataAttributes": {
    "customer_category": "hotel",
    "sentiment": "positive",
    "date": "2025-11-30",
    "title": "居酒屋への業務用からあげの提案商談",
    "revenue": "￥40,000,000",
    "practicality_score": "95",
    "keywords": "受注, 唐揚げ, 裏メニュー"
  }
}
` + "```"

// BuildPrompt renders the extraction instructions for one transcript.
func BuildPrompt(transcript string, referenceDate time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<input>%s</input>\n", transcript)
	fmt.Fprintf(&b, "<date>%s</date>\n", referenceDate.Format(ReferenceDateLayout))
	b.WriteString(instructions)
	return b.String()
}
