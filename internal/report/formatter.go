// Package report renders analysis results as Slack Block Kit messages.
package report

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/slack-go/slack"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
)

const (
	maxBlocks      = 50
	maxSectionText = 3000
	maxHeaderText  = 150
	maxLinks       = 10
	dateLayout     = "2006-01-02"
	timeLayout     = "2006-01-02 15:04 UTC"
)

// Formatter is pure: equal input always yields byte-identical payloads.
type Formatter struct {
	ticketBaseURL string
}

func New(ticketBaseURL string) *Formatter {
	return &Formatter{ticketBaseURL: strings.TrimRight(ticketBaseURL, "/")}
}

func (f *Formatter) Format(result *model.AnalysisResult) (model.MessagePayload, error) {
	if result == nil {
		return model.MessagePayload{}, fmt.Errorf("%w: nil result", model.ErrFormat)
	}
	for i, c := range result.Clusters {
		if len(c.TicketIDs) == 0 {
			return model.MessagePayload{}, fmt.Errorf("%w: cluster %d (%q) has no tickets", model.ErrFormat, i+1, c.Title)
		}
	}

	title := "TARS Support Summary for " + result.Window.End.UTC().Format(dateLayout)

	blocks := []slack.Block{
		slack.NewHeaderBlock(plain(title)),
		slack.NewSectionBlock(mrkdwn(summaryLine(result)), nil, nil),
	}
	for _, w := range result.Warnings {
		blocks = append(blocks, slack.NewContextBlock("", mrkdwn(":warning: "+escape(w.Message))))
	}
	blocks = append(blocks, slack.NewDividerBlock())

	if len(result.Clusters) == 0 {
		blocks = append(blocks, slack.NewSectionBlock(
			mrkdwn(":white_check_mark: No significant issues found in this window."), nil, nil))
	} else {
		blocks = append(blocks, f.clusterBlocks(result.Clusters, maxBlocks-len(blocks)-1)...)
	}

	blocks = append(blocks, slack.NewContextBlock("",
		mrkdwn("Generated "+result.GeneratedAt.UTC().Format(timeLayout))))

	text := fmt.Sprintf("%s: %d issue clusters across %d tickets", title, len(result.Clusters), result.TotalTickets)
	return encode(text, blocks)
}

// FormatFailure renders the operator alert for a failed run.
func (f *Formatter) FormatFailure(run model.RunRecord) model.MessagePayload {
	stage := string(run.FailedStage)
	if stage == "" {
		stage = "unknown"
	}
	headline := fmt.Sprintf("TARS run %d failed while %s", run.ID, stage)

	details := fmt.Sprintf("*Trigger:* %s\n*Window:* %s\n*Started:* %s",
		run.Trigger, run.Window.String(), run.StartedAt.UTC().Format(timeLayout))
	errText := run.Error
	if errText == "" {
		errText = "unknown error"
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(plain(":rotating_light: " + headline)),
		slack.NewSectionBlock(mrkdwn(details), nil, nil),
		slack.NewSectionBlock(mrkdwn(capText("```"+escape(errText)+"```")), nil, nil),
	}

	payload, err := encode(headline+": "+errText, blocks)
	if err != nil {
		body, _ := json.Marshal(slack.WebhookMessage{Text: headline + ": " + errText})
		return model.MessagePayload{Text: headline, Body: body}
	}
	return payload
}

func (f *Formatter) clusterBlocks(clusters []model.Cluster, budget int) []slack.Block {
	shown := len(clusters)
	if shown > budget {
		shown = budget - 1 // room for the overflow line
	}

	blocks := make([]slack.Block, 0, shown+1)
	for i := 0; i < shown; i++ {
		blocks = append(blocks, slack.NewSectionBlock(mrkdwn(f.clusterText(i+1, clusters[i])), nil, nil))
	}

	if hidden := clusters[shown:]; len(hidden) > 0 {
		tickets := 0
		for _, c := range hidden {
			tickets += len(c.TicketIDs)
		}
		blocks = append(blocks, slack.NewContextBlock("",
			mrkdwn(fmt.Sprintf("+%d more clusters (%d tickets) not shown", len(hidden), tickets))))
	}
	return blocks
}

func (f *Formatter) clusterText(rank int, c model.Cluster) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%d. %s*  `%s`  %d %s\n", rank, escape(c.Title), strings.ToUpper(string(c.Severity)),
		len(c.TicketIDs), plural(len(c.TicketIDs), "ticket", "tickets"))
	if c.GeographicPattern != "" {
		fmt.Fprintf(&b, ":earth_americas: %s\n", escape(c.GeographicPattern))
	}
	if c.RootCause != "" {
		b.WriteString(escape(c.RootCause))
		b.WriteString("\n")
	}
	b.WriteString(f.ticketLinks(c.TicketIDs))
	return capText(b.String())
}

func (f *Formatter) ticketLinks(ids []int64) string {
	n := min(len(ids), maxLinks)
	links := make([]string, 0, n+1)
	for _, id := range ids[:n] {
		links = append(links, fmt.Sprintf("<%s/en/admin/ticket/view/%d|#%d>", f.ticketBaseURL, id, id))
	}
	if extra := len(ids) - n; extra > 0 {
		links = append(links, "+"+strconv.Itoa(extra)+" more")
	}
	return strings.Join(links, ", ")
}

func summaryLine(result *model.AnalysisResult) string {
	line := fmt.Sprintf("*%d* %s created %s",
		result.TotalTickets, plural(result.TotalTickets, "ticket", "tickets"), result.Window.String())
	if result.AnalyzedTickets > 0 && result.AnalyzedTickets < result.TotalTickets {
		line += fmt.Sprintf(" (%d analyzed)", result.AnalyzedTickets)
	}
	return line + fmt.Sprintf("\n*%d* issue %s", len(result.Clusters), plural(len(result.Clusters), "cluster", "clusters"))
}

func encode(text string, blocks []slack.Block) (model.MessagePayload, error) {
	msg := slack.WebhookMessage{
		Text:   text,
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return model.MessagePayload{}, fmt.Errorf("%w: encode message: %w", model.ErrFormat, err)
	}
	return model.MessagePayload{Text: text, Body: body}, nil
}

func plain(text string) *slack.TextBlockObject {
	if utf8.RuneCountInString(text) > maxHeaderText {
		text = string([]rune(text)[:maxHeaderText-1]) + "…"
	}
	return slack.NewTextBlockObject(slack.PlainTextType, text, true, false)
}

func mrkdwn(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string {
	return mrkdwnEscaper.Replace(s)
}

func capText(s string) string {
	if utf8.RuneCountInString(s) <= maxSectionText {
		return s
	}
	return string([]rune(s)[:maxSectionText-1]) + "…"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
