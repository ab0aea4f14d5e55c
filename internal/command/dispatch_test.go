package command_test

import (
	"context"
	"time"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/command"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/pipeline"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/slack-go/slack"
)

type fakeRuns struct {
	windows []model.TimeWindow
	opts    [][]pipeline.RunOption
	err     error
	snap    pipeline.Snapshot
}

func (f *fakeRuns) Start(_ context.Context, window model.TimeWindow, _ model.Trigger, opts ...pipeline.RunOption) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.windows = append(f.windows, window)
	f.opts = append(f.opts, opts)
	return int64(len(f.windows)), nil
}

func (f *fakeRuns) Status() pipeline.Snapshot { return f.snap }

type stubNotifier struct{ url string }

func (stubNotifier) Deliver(context.Context, model.MessagePayload) (*model.DeliveryReceipt, error) {
	return &model.DeliveryReceipt{Attempts: 1}, nil
}

var _ = Describe("Dispatcher", func() {
	var (
		runs *fakeRuns
		d    *command.Dispatcher
		urls []string
	)

	BeforeEach(func() {
		runs = &fakeRuns{}
		urls = nil
		d = command.NewDispatcher(runs, 30*24*time.Hour)
		d.Responder = func(responseURL string) pipeline.Notifier {
			urls = append(urls, responseURL)
			return stubNotifier{url: responseURL}
		}
	})

	slash := func(text, responseURL string) slack.SlashCommand {
		return slack.SlashCommand{Command: "/tars", Text: text, UserName: "dana", ResponseURL: responseURL}
	}

	It("attaches a failure notifier for the response_url", func() {
		msg := d.Dispatch(context.Background(), slash("analyze 12", "https://hooks.slack.com/commands/T1/2/x"))

		Expect(msg.ResponseType).To(Equal(slack.ResponseTypeInChannel))
		Expect(runs.windows).To(HaveLen(1))
		Expect(runs.windows[0].Duration()).To(Equal(12 * time.Hour))
		Expect(urls).To(Equal([]string{"https://hooks.slack.com/commands/T1/2/x"}))
		Expect(pipeline.NewRunOptions(runs.opts[0]...).FailureNotifiers).To(ConsistOf(stubNotifier{url: "https://hooks.slack.com/commands/T1/2/x"}))
	})

	It("starts without a requester notifier when there is no response_url", func() {
		d.Dispatch(context.Background(), slash("analyze", ""))

		Expect(urls).To(BeEmpty())
		Expect(pipeline.NewRunOptions(runs.opts[0]...).FailureNotifiers).To(BeEmpty())
	})

	It("answers a busy lock ephemerally", func() {
		runs.err = model.ErrAlreadyRunning

		msg := d.Dispatch(context.Background(), slash("analyze", ""))
		Expect(msg.ResponseType).To(Equal(slack.ResponseTypeEphemeral))
		Expect(msg.Text).To(ContainSubstring("already running"))
	})

	It("rejects an overflowing range without starting a run", func() {
		msg := d.Dispatch(context.Background(), slash("analyze 5124096", ""))

		Expect(runs.windows).To(BeEmpty())
		Expect(msg.Text).To(ContainSubstring("invalid time range"))
	})

	It("names the command in its hint even when Slack omits it", func() {
		msg := d.Dispatch(context.Background(), slack.SlashCommand{Text: "deploy"})
		Expect(msg.Text).To(ContainSubstring("Try `/tars help`"))
	})

	It("answers status from the snapshot", func() {
		runs.snap = pipeline.Snapshot{Active: true, Current: &model.RunRecord{ID: 4, State: model.RunStateAnalyzing}}

		msg := d.Dispatch(context.Background(), slash("status", ""))
		Expect(msg.Text).To(ContainSubstring("Run 4 is analyzing"))
	})
})
