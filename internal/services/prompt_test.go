package services

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/tbourn/astro-chat-relay/internal/domain"
)

func TestSeedPrompt_Layout(t *testing.T) {
	cat := testCatalog(t)
	bundle := domain.Bundle{
		"planet_details": json.RawMessage(`{ "0": {"name": "As"} }`),
		"shad_bala":      json.RawMessage(`[1, 2]`),
	}
	got := SeedPrompt(cat, sampleBirth(), bundle, "career?")
	lines := strings.Split(got, "\n")

	if lines[0] != "User: Asha Rao" {
		t.Fatalf("first line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "Birth Details: DOB 15/08/1990, TOB 06:45") {
		t.Fatalf("birth line = %q", lines[1])
	}
	// One line per category, in catalog order.
	for i, c := range cat.Categories {
		if !strings.HasPrefix(lines[2+i], c.Label+": ") {
			t.Fatalf("line %d = %q, want label %q", 2+i, lines[2+i], c.Label)
		}
	}
	if lines[2] != `Kundli Planet Details: {"0":{"name":"As"}}` {
		t.Fatalf("payload not compacted: %q", lines[2])
	}
	if !strings.Contains(got, "Shada Bala: [1,2]\n") || !strings.Contains(got, "Mangal Dosh: {}\n") {
		t.Fatalf("payloads missing or not defaulted:\n%s", got)
	}
	n := len(cat.Categories)
	if lines[2+n] != "User Query: career?" {
		t.Fatalf("query line = %q", lines[2+n])
	}
	if !strings.HasPrefix(lines[3+n], "Give an expert Vedic astrology prediction") {
		t.Fatalf("instruction line = %q", lines[3+n])
	}
}

func TestSystemPrompt_PlainText(t *testing.T) {
	for _, want := range []string{"Vedic astrologer", "plain text", "hashtags (#)", "•"} {
		if !strings.Contains(SystemPrompt, want) {
			t.Fatalf("system prompt lacks %q", want)
		}
	}
}
