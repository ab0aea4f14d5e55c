package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
)

const helpText = "*TARS: ticket analysis for the support team*\n\n" +
	"`/tars analyze`  analyze the last 24 hours\n" +
	"`/tars analyze 12`  analyze the last 12 hours\n" +
	"`/tars analyze 7d`  analyze the last 7 days\n" +
	"`/tars status`  show the current or last run\n" +
	"`/tars help`  show this message\n\n" +
	"Reports are posted to the team channel when the run finishes."

func Help() *slack.Msg {
	return &slack.Msg{
		ResponseType: slack.ResponseTypeEphemeral,
		Text:         helpText,
	}
}

// Started acknowledges an accepted analyze command in the channel.
func Started(userName string, window time.Duration, runID int64) *slack.Msg {
	who := "Someone"
	if userName != "" {
		who = "@" + userName
	}
	return &slack.Msg{
		ResponseType: slack.ResponseTypeInChannel,
		Text: fmt.Sprintf(":mag: %s started an analysis of the last %s (run %d). The report will be posted here when it is ready.",
			who, FormatRange(window), runID),
	}
}

func AlreadyRunning() *slack.Msg {
	return Ephemeral(":hourglass: An analysis is already running. Try again when it has finished.")
}

func Ephemeral(text string) *slack.Msg {
	return &slack.Msg{ResponseType: slack.ResponseTypeEphemeral, Text: text}
}

// Status describes the active run if any, else the last one.
func Status(active bool, current, last *model.RunRecord) *slack.Msg {
	var b strings.Builder
	switch {
	case active && current != nil:
		fmt.Fprintf(&b, ":arrows_counterclockwise: Run %d is %s (trigger %s, window %s).",
			current.ID, current.State, current.Trigger, current.Window.String())
	default:
		b.WriteString(":zzz: No run in progress.")
	}

	if last != nil {
		fmt.Fprintf(&b, "\nLast run %d %s", last.ID, last.State)
		if last.FinishedAt != nil {
			fmt.Fprintf(&b, " at %s", last.FinishedAt.UTC().Format("2006-01-02 15:04 UTC"))
		}
		if last.State == model.RunStateFailed && last.FailedStage != "" {
			fmt.Fprintf(&b, " while %s", last.FailedStage)
		}
		fmt.Fprintf(&b, " (%d tickets, %d clusters).", last.TicketCount, last.ClusterCount)
	}
	return Ephemeral(b.String())
}
