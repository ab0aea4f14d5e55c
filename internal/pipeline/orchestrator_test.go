package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/notifier"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/pipeline"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/report"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func tickets(n int, end time.Time) []model.Ticket {
	out := make([]model.Ticket, n)
	for i := range out {
		out[i] = model.Ticket{
			ID:        int64(i + 1),
			Subject:   fmt.Sprintf("ticket %d", i+1),
			CreatedAt: end.Add(-time.Duration(i+1) * time.Minute),
		}
	}
	return out
}

func sectionTexts(body []byte) []string {
	var msg struct {
		Blocks []struct {
			Type string `json:"type"`
			Text struct {
				Text string `json:"text"`
			} `json:"text"`
		} `json:"blocks"`
	}
	ExpectWithOffset(1, json.Unmarshal(body, &msg)).To(Succeed())
	var out []string
	for _, b := range msg.Blocks {
		if b.Type == "section" {
			out = append(out, b.Text.Text)
		}
	}
	return out
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx       context.Context
		now       time.Time
		window    model.TimeWindow
		source    *mockSource
		analyzer  *mockAnalyzer
		formatter *countingFormatter
		delivery  *mockNotifier
		alerter   *mockNotifier
		publisher *recordingPublisher
		cfg       pipeline.Config
		nextID    atomic.Int64
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
		window = model.TrailingWindow(now, 24*time.Hour)

		source = &mockSource{}
		analyzer = &mockAnalyzer{}
		formatter = &countingFormatter{inner: report.New("https://support.example.com")}
		delivery = &mockNotifier{}
		alerter = &mockNotifier{}
		publisher = &recordingPublisher{}
		nextID.Store(100)

		cfg = pipeline.Config{
			Source:    source,
			Analyzer:  analyzer,
			Formatter: formatter,
			Notifier:  delivery,
			Alerter:   alerter,
			Status:    publisher,
			Now:       func() time.Time { return now },
			NewID:     func() int64 { return nextID.Add(1) },
		}
	})

	Describe("end to end", func() {
		It("delivers three ranked clusters for 141 tickets", func() {
			all := tickets(141, now)
			source.fetchFn = func(context.Context, model.TimeWindow) ([]model.Ticket, error) {
				return all, nil
			}
			analyzer.analyzeFn = func(_ context.Context, in []model.Ticket) (*model.Analysis, error) {
				Expect(in).To(HaveLen(141))
				return &model.Analysis{
					AnalyzedTickets: len(in),
					Clusters: []model.Cluster{
						{Title: "Outage", RootCause: "Server down", Severity: model.SeverityCritical, TicketIDs: []int64{1, 2, 3, 4, 5}},
						{Title: "Refunds", RootCause: "Trials", Severity: model.SeverityHigh, TicketIDs: []int64{6, 7}},
						{Title: "TV login", RootCause: "Codes", Severity: model.SeverityLow, TicketIDs: []int64{8, 9, 10}},
					},
				}, nil
			}

			o := pipeline.New(cfg)
			outcome, err := o.Run(ctx, window, model.TriggerManual)
			Expect(err).NotTo(HaveOccurred())

			Expect(outcome.Succeeded()).To(BeTrue())
			Expect(outcome.Run.State).To(Equal(model.RunStateSucceeded))
			Expect(outcome.Run.TicketCount).To(Equal(141))
			Expect(outcome.Run.ClusterCount).To(Equal(3))
			Expect(outcome.Run.FinishedAt).NotTo(BeNil())
			Expect(outcome.Result).NotTo(BeNil())
			Expect(outcome.Result.TotalTickets).To(Equal(141))
			Expect(outcome.Receipt).NotTo(BeNil())

			Expect(delivery.Calls()).To(Equal(1))
			secs := sectionTexts(delivery.Last().Body)
			Expect(secs).To(HaveLen(4))
			Expect(secs[1]).To(HavePrefix("*1. Outage*"))
			Expect(secs[2]).To(HavePrefix("*2. Refunds*"))
			Expect(secs[3]).To(HavePrefix("*3. TV login*"))

			Expect(alerter.Calls()).To(BeZero())

			snap := o.Status()
			Expect(snap.State).To(Equal(model.RunStateIdle))
			Expect(snap.Active).To(BeFalse())
			Expect(snap.Last.State).To(Equal(model.RunStateSucceeded))
			Expect(snap.Last.ID).To(Equal(outcome.Run.ID))
		})

		It("publishes every transition in order", func() {
			o := pipeline.New(cfg)
			_, err := o.Run(ctx, window, model.TriggerSchedule)
			Expect(err).NotTo(HaveOccurred())

			Expect(publisher.States()).To(Equal([]model.RunState{
				model.RunStateFetching,
				model.RunStateAnalyzing,
				model.RunStateFormatting,
				model.RunStateDelivering,
				model.RunStateSucceeded,
			}))
		})

		It("delivers a no-issues report when the window has no tickets", func() {
			o := pipeline.New(cfg)
			outcome, err := o.Run(ctx, window, model.TriggerSchedule)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Succeeded()).To(BeTrue())

			Expect(delivery.Calls()).To(Equal(1))
			Expect(string(delivery.Last().Body)).To(ContainSubstring("No significant issues"))
		})
	})

	Describe("failures", func() {
		It("stops at fetching when the source is unavailable and alerts once", func() {
			source.fetchFn = func(context.Context, model.TimeWindow) ([]model.Ticket, error) {
				return nil, fmt.Errorf("%w: status 503", model.ErrSourceUnavailable)
			}

			o := pipeline.New(cfg)
			outcome, err := o.Run(ctx, window, model.TriggerSchedule)
			Expect(err).To(MatchError(model.ErrSourceUnavailable))

			Expect(outcome.Succeeded()).To(BeFalse())
			Expect(outcome.Run.State).To(Equal(model.RunStateFailed))
			Expect(outcome.Run.FailedStage).To(Equal(model.RunStateFetching))
			Expect(outcome.Run.Error).To(ContainSubstring("status 503"))

			Expect(analyzer.calls.Load()).To(BeZero())
			Expect(formatter.calls.Load()).To(BeZero())
			Expect(delivery.Calls()).To(BeZero())

			Expect(alerter.Calls()).To(Equal(1))
			Expect(formatter.failures.Load()).To(Equal(int32(1)))
			Expect(string(alerter.Last().Body)).To(ContainSubstring("failed while fetching"))

			Expect(publisher.States()).To(Equal([]model.RunState{model.RunStateFetching, model.RunStateFailed}))
			Expect(o.Status().Last.FailedStage).To(Equal(model.RunStateFetching))
		})

		It("escalates a failed delivery to the operator channel", func() {
			delivery.deliverFn = func(context.Context, model.MessagePayload) (*model.DeliveryReceipt, error) {
				return nil, &model.DeliveryError{Retryable: true, Attempts: 3}
			}

			o := pipeline.New(cfg)
			outcome, err := o.Run(ctx, window, model.TriggerManual)
			Expect(err).To(MatchError(model.ErrDeliveryFailed))
			Expect(outcome.Run.FailedStage).To(Equal(model.RunStateDelivering))
			Expect(outcome.Result).NotTo(BeNil())
			Expect(alerter.Calls()).To(Equal(1))
		})

		It("does not retry a failed alert", func() {
			source.fetchFn = func(context.Context, model.TimeWindow) ([]model.Ticket, error) {
				return nil, model.ErrSourceAuth
			}
			alerter.deliverFn = func(context.Context, model.MessagePayload) (*model.DeliveryReceipt, error) {
				return nil, &model.DeliveryError{StatusCode: 404, Attempts: 1}
			}

			o := pipeline.New(cfg)
			_, err := o.Run(ctx, window, model.TriggerManual)
			Expect(err).To(MatchError(model.ErrSourceAuth))
			Expect(alerter.Calls()).To(Equal(1))
		})

		It("survives a missing operator channel", func() {
			cfg.Alerter = nil
			source.fetchFn = func(context.Context, model.TimeWindow) ([]model.Ticket, error) {
				return nil, model.ErrSourceUnavailable
			}

			o := pipeline.New(cfg)
			_, err := o.Run(ctx, window, model.TriggerManual)
			Expect(err).To(MatchError(model.ErrSourceUnavailable))
		})

		It("turns a panic into a failed stage and releases the lock", func() {
			analyzer.analyzeFn = func(context.Context, []model.Ticket) (*model.Analysis, error) {
				panic("boom")
			}

			o := pipeline.New(cfg)
			outcome, err := o.Run(ctx, window, model.TriggerManual)
			Expect(err).To(MatchError(ContainSubstring("panic: boom")))
			Expect(outcome.Run.FailedStage).To(Equal(model.RunStateAnalyzing))
			Expect(alerter.Calls()).To(Equal(1))

			analyzer.analyzeFn = nil
			outcome, err = o.Run(ctx, window, model.TriggerManual)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Succeeded()).To(BeTrue())
		})

		It("applies the stage budget", func() {
			cfg.FetchTimeout = 20 * time.Millisecond
			source.fetchFn = func(ctx context.Context, _ model.TimeWindow) ([]model.Ticket, error) {
				<-ctx.Done()
				return nil, fmt.Errorf("%w: %w", model.ErrSourceUnavailable, ctx.Err())
			}

			o := pipeline.New(cfg)
			outcome, err := o.Run(ctx, window, model.TriggerManual)
			Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
			Expect(outcome.Run.FailedStage).To(Equal(model.RunStateFetching))
		})
	})

	Describe("run-lock", func() {
		It("lets exactly one of two concurrent runs proceed", func() {
			release := make(chan struct{})
			entered := make(chan struct{}, 2)
			source.fetchFn = func(context.Context, model.TimeWindow) ([]model.Ticket, error) {
				entered <- struct{}{}
				<-release
				return nil, nil
			}
			o := pipeline.New(cfg)

			var (
				wg       sync.WaitGroup
				start    = make(chan struct{})
				rejected atomic.Int32
				ran      atomic.Int32
			)
			for _, trigger := range []model.Trigger{model.TriggerManual, model.TriggerSchedule} {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					<-start
					_, err := o.Run(ctx, window, trigger)
					if errors.Is(err, model.ErrAlreadyRunning) {
						rejected.Add(1)
						return
					}
					Expect(err).NotTo(HaveOccurred())
					ran.Add(1)
				}()
			}

			close(start)
			Eventually(entered).Should(Receive())
			Eventually(rejected.Load).Should(Equal(int32(1)))
			Expect(o.Status().Active).To(BeTrue())
			Expect(o.Status().State).To(Equal(model.RunStateFetching))

			close(release)
			wg.Wait()

			Expect(ran.Load()).To(Equal(int32(1)))
			Expect(source.calls.Load()).To(Equal(int32(1)))
			Consistently(entered).ShouldNot(Receive())

			outcome, err := o.Run(ctx, window, model.TriggerManual)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Succeeded()).To(BeTrue())
		})

		It("releases the lock after a failed run", func() {
			fail := true
			source.fetchFn = func(context.Context, model.TimeWindow) ([]model.Ticket, error) {
				if fail {
					return nil, model.ErrSourceUnavailable
				}
				return nil, nil
			}
			o := pipeline.New(cfg)

			_, err := o.Run(ctx, window, model.TriggerManual)
			Expect(err).To(HaveOccurred())

			fail = false
			_, err = o.Run(ctx, window, model.TriggerManual)
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects Start while a run is active", func() {
			release := make(chan struct{})
			source.fetchFn = func(context.Context, model.TimeWindow) ([]model.Ticket, error) {
				<-release
				return nil, nil
			}
			o := pipeline.New(cfg)

			_, err := o.Start(ctx, window, model.TriggerSlack)
			Expect(err).NotTo(HaveOccurred())

			_, err = o.Start(ctx, window, model.TriggerManual)
			Expect(err).To(MatchError(model.ErrAlreadyRunning))
			_, err = o.Run(ctx, window, model.TriggerSchedule)
			Expect(err).To(MatchError(model.ErrAlreadyRunning))

			close(release)
			Expect(o.Wait(ctx)).To(Succeed())
		})
	})

	Describe("Start", func() {
		It("acknowledges immediately and keeps running after the caller cancels", func() {
			release := make(chan struct{})
			source.fetchFn = func(ctx context.Context, _ model.TimeWindow) ([]model.Ticket, error) {
				<-release
				return nil, ctx.Err()
			}
			o := pipeline.New(cfg)

			reqCtx, cancel := context.WithCancel(ctx)
			runID, err := o.Start(reqCtx, window, model.TriggerManual)
			Expect(err).NotTo(HaveOccurred())
			Expect(runID).To(Equal(int64(101)))
			cancel()

			Expect(o.Status().Active).To(BeTrue())
			close(release)

			waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
			defer waitCancel()
			Expect(o.Wait(waitCtx)).To(Succeed())

			last := o.Status().Last
			Expect(last.ID).To(Equal(runID))
			Expect(last.State).To(Equal(model.RunStateSucceeded))
			Expect(delivery.Calls()).To(Equal(1))
		})

		It("tells the requester exactly once when the run fails", func() {
			source.fetchFn = func(context.Context, model.TimeWindow) ([]model.Ticket, error) {
				return nil, fmt.Errorf("%w: status 502", model.ErrSourceUnavailable)
			}
			requester := &mockNotifier{}
			o := pipeline.New(cfg)

			_, err := o.Start(ctx, window, model.TriggerSlack, pipeline.WithFailureNotifier(requester))
			Expect(err).NotTo(HaveOccurred())

			waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			Expect(o.Wait(waitCtx)).To(Succeed())

			Expect(requester.Calls()).To(Equal(1))
			Expect(string(requester.Last().Body)).To(ContainSubstring("failed while fetching"))
			Expect(alerter.Calls()).To(Equal(1))
		})

		It("does not retry a failed requester notice", func() {
			source.fetchFn = func(context.Context, model.TimeWindow) ([]model.Ticket, error) {
				return nil, model.ErrSourceUnavailable
			}
			requester := &mockNotifier{deliverFn: func(context.Context, model.MessagePayload) (*model.DeliveryReceipt, error) {
				return nil, &model.DeliveryError{Attempts: 1}
			}}
			o := pipeline.New(cfg)

			_, err := o.Start(ctx, window, model.TriggerSlack, pipeline.WithFailureNotifier(requester))
			Expect(err).NotTo(HaveOccurred())

			waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			Expect(o.Wait(waitCtx)).To(Succeed())

			Expect(requester.Calls()).To(Equal(1))
			Expect(o.Status().Active).To(BeFalse())
		})

		It("leaves the requester alone when the run succeeds", func() {
			requester := &mockNotifier{}
			o := pipeline.New(cfg)

			_, err := o.Start(ctx, window, model.TriggerSlack, pipeline.WithFailureNotifier(requester))
			Expect(err).NotTo(HaveOccurred())

			waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			Expect(o.Wait(waitCtx)).To(Succeed())

			Expect(requester.Calls()).To(BeZero())
			Expect(delivery.Calls()).To(Equal(1))
		})

		It("gives up waiting when the context ends", func() {
			release := make(chan struct{})
			DeferCleanup(func() { close(release) })
			source.fetchFn = func(context.Context, model.TimeWindow) ([]model.Ticket, error) {
				<-release
				return nil, nil
			}
			o := pipeline.New(cfg)
			_, err := o.Start(ctx, window, model.TriggerManual)
			Expect(err).NotTo(HaveOccurred())

			waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			Expect(o.Wait(waitCtx)).To(MatchError(context.DeadlineExceeded))
		})
	})

	Describe("delivery retry", func() {
		It("succeeds after two timeouts without a duplicate report", func() {
			var (
				requests  atomic.Int32
				delivered atomic.Int32
			)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.ReadAll(r.Body)
				if requests.Add(1) <= 2 {
					select {
					case <-r.Context().Done():
					case <-time.After(time.Second):
					}
					return
				}
				delivered.Add(1)
				_, _ = io.WriteString(w, "ok")
			}))
			DeferCleanup(server.Close)

			cfg.Notifier = notifier.New(notifier.Config{
				URL:         server.URL,
				Timeout:     50 * time.Millisecond,
				MaxAttempts: 3,
				MinBackoff:  time.Millisecond,
				MaxBackoff:  2 * time.Millisecond,
			})

			o := pipeline.New(cfg)
			outcome, err := o.Run(ctx, window, model.TriggerManual)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Succeeded()).To(BeTrue())
			Expect(outcome.Receipt.Attempts).To(Equal(3))
			Expect(delivered.Load()).To(Equal(int32(1)))
			Expect(alerter.Calls()).To(BeZero())
		})
	})
})
