package services

import (
	"bytes"
	"encoding/json"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/astro-chat-relay/internal/astro"
	"github.com/tbourn/astro-chat-relay/internal/domain"
)

// SystemPrompt fixes the assistant persona and the plain-text output format.
const SystemPrompt = "You are an expert Vedic astrologer. Provide your response in plain text format without any markdown formatting. " +
	"Do not use hashtags (#), asterisks (*), or any other markdown syntax. " +
	"Format your response in simple paragraphs with clean line breaks. " +
	"Use bullet points with • symbol if needed, but avoid markdown formatting."

const seedInstruction = "Give an expert Vedic astrology prediction in simple language. " +
	"Do not use hashtags (#), asterisks (*), or any other markdown syntax. Avoid including links."

// SeedPrompt renders the first user turn of a session: the person, every
// cached category in catalog order, the query and the closing instruction.
func SeedPrompt(cat *astro.Catalog, b BirthData, bundle domain.Bundle, query string) string {
	var sb strings.Builder
	sb.WriteString("User: ")
	sb.WriteString(cases.Title(language.Und).String(b.Name))
	sb.WriteByte('\n')
	sb.WriteString("Birth Details: DOB ")
	sb.WriteString(b.DOB)
	sb.WriteString(", TOB ")
	sb.WriteString(b.TOB)
	sb.WriteString(", Lat ")
	sb.WriteString(astro.FormatCoord(b.Lat))
	sb.WriteString(", Lon ")
	sb.WriteString(astro.FormatCoord(b.Lon))
	sb.WriteString(", TZ ")
	sb.WriteString(astro.FormatCoord(b.TZ))
	sb.WriteByte('\n')
	for _, c := range cat.Categories {
		sb.WriteString(c.Label)
		sb.WriteString(": ")
		sb.WriteString(compact(bundle[c.Name]))
		sb.WriteByte('\n')
	}
	sb.WriteString("User Query: ")
	sb.WriteString(query)
	sb.WriteByte('\n')
	sb.WriteString(seedInstruction)
	return sb.String()
}

func compact(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
