package analyzer

import (
	"fmt"
	"strings"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
)

const maxMessageChars = 600

const systemPrompt = `You are TARS, a technical support operations analyst for Windscribe VPN.

You receive one batch of support tickets and group them into clusters of tickets that share the same probable root cause.

Rules:
- Every cluster needs at least one ticket. Prefer clusters of 2+ tickets; a single ticket only forms a cluster when it is severe on its own.
- A ticket belongs to at most one cluster. Tickets that fit nowhere are left out.
- Only use ticket ids that appear in the input. Never invent ids.
- If a cluster matches a known category, set category_id to that category's id. Otherwise set category_id to "" and give the cluster a short, specific title (e.g. "iOS 18.3 crash on launch", "Turkey WireGuard block wave").
- Never use catch-all titles such as "Miscellaneous", "Other", "General" or "Various".
- root_cause: 1-2 sentences describing what you actually saw in this batch (numbers, regions, protocols, platforms, error codes), not the category definition.
- severity: "critical" for outages or security issues affecting many users, "high" for widespread blocking problems, "medium" for recurring problems with workarounds, "low" for questions and minor friction.
- geographic_pattern: countries or regions affected, or "" when there is none.

Return only JSON matching the schema. No markdown, no commentary.`

func buildUserPrompt(tickets []model.Ticket, catalog *Catalog) string {
	var b strings.Builder

	if catalog.Len() > 0 {
		b.WriteString("=== KNOWN CATEGORIES ===\n")
		for _, c := range catalog.Categories {
			fmt.Fprintf(&b, "- %s: %s\n  %s\n", c.ID, c.Title, c.Description)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "=== TICKETS (%d) ===\n\n", len(tickets))
	for _, t := range tickets {
		b.WriteString(renderTicket(t))
	}
	return b.String()
}

func renderTicket(t model.Ticket) string {
	body := t.Body
	if r := []rune(body); len(r) > maxMessageChars {
		body = string(r[:maxMessageChars])
	}
	return fmt.Sprintf("id=%d number=%s created=%s\nSubject: %s\nMessage: %s\n---\n",
		t.ID, t.Number, t.CreatedAt.UTC().Format("2006-01-02T15:04Z"), t.Subject, body)
}
