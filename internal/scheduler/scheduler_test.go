package scheduler_test

import (
	"context"
	"sync"
	"time"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/scheduler"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type mockRunner struct {
	mu    sync.Mutex
	calls []model.TimeWindow
	trig  []model.Trigger
	runFn func(ctx context.Context, window model.TimeWindow) (*model.RunOutcome, error)
}

func (m *mockRunner) Run(ctx context.Context, window model.TimeWindow, trigger model.Trigger) (*model.RunOutcome, error) {
	m.mu.Lock()
	m.calls = append(m.calls, window)
	m.trig = append(m.trig, trigger)
	m.mu.Unlock()
	if m.runFn != nil {
		return m.runFn(ctx, window)
	}
	return &model.RunOutcome{Run: model.RunRecord{ID: 1, State: model.RunStateSucceeded}}, nil
}

func (m *mockRunner) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var _ = Describe("Scheduler", func() {
	var runner *mockRunner

	BeforeEach(func() {
		runner = &mockRunner{}
	})

	It("rejects an invalid expression", func() {
		_, err := scheduler.New(runner, scheduler.Config{Spec: "not a cron"})
		Expect(err).To(MatchError(ContainSubstring("invalid schedule")))
	})

	It("rejects an unknown timezone", func() {
		_, err := scheduler.New(runner, scheduler.Config{Spec: "0 9 * * *", Timezone: "Mars/Olympus"})
		Expect(err).To(MatchError(ContainSubstring("invalid timezone")))
	})

	It("runs a trailing window through the shared runner", func() {
		s, err := scheduler.New(runner, scheduler.Config{Spec: "0 9 * * *", Window: 6 * time.Hour})
		Expect(err).NotTo(HaveOccurred())

		s.Tick(context.Background())

		Expect(runner.Calls()).To(Equal(1))
		Expect(runner.trig[0]).To(Equal(model.TriggerSchedule))
		Expect(runner.calls[0].Duration()).To(Equal(6 * time.Hour))
		Expect(runner.calls[0].End).To(BeTemporally("~", time.Now(), 2*time.Second))
	})

	It("skips a tick when a run is already active", func() {
		runner.runFn = func(context.Context, model.TimeWindow) (*model.RunOutcome, error) {
			return nil, model.ErrAlreadyRunning
		}
		s, err := scheduler.New(runner, scheduler.Config{Spec: "0 9 * * *"})
		Expect(err).NotTo(HaveOccurred())

		Expect(func() { s.Tick(context.Background()) }).NotTo(Panic())
		Expect(runner.Calls()).To(Equal(1))
	})

	It("fires on schedule and waits for the in-flight tick on Stop", func() {
		started := make(chan struct{}, 1)
		release := make(chan struct{})
		runner.runFn = func(context.Context, model.TimeWindow) (*model.RunOutcome, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return &model.RunOutcome{}, nil
		}

		s, err := scheduler.New(runner, scheduler.Config{Spec: "@every 1s"})
		Expect(err).NotTo(HaveOccurred())
		s.Start()
		Expect(s.Next()).NotTo(BeZero())

		Eventually(started, 3*time.Second).Should(Receive())

		stopped := make(chan error, 1)
		go func() { stopped <- s.Stop(context.Background()) }()
		Consistently(stopped, 100*time.Millisecond).ShouldNot(Receive())

		close(release)
		Eventually(stopped).Should(Receive(BeNil()))
	})

	It("gives up waiting on Stop when the context ends", func() {
		release := make(chan struct{})
		DeferCleanup(func() { close(release) })
		started := make(chan struct{}, 1)
		runner.runFn = func(context.Context, model.TimeWindow) (*model.RunOutcome, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return &model.RunOutcome{}, nil
		}

		s, err := scheduler.New(runner, scheduler.Config{Spec: "@every 1s"})
		Expect(err).NotTo(HaveOccurred())
		s.Start()
		Eventually(started, 3*time.Second).Should(Receive())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		Expect(s.Stop(ctx)).To(MatchError(context.DeadlineExceeded))
	})
})

var _ = Describe("NextTimes", func() {
	It("lists upcoming fire times in the schedule's timezone", func() {
		from := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
		times, err := scheduler.NextTimes("0 9 * * *", "UTC", from, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(times).To(HaveLen(3))
		Expect(times[0]).To(BeTemporally("==", time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)))
		Expect(times[1]).To(BeTemporally("==", time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)))
		Expect(times[2]).To(BeTemporally("==", time.Date(2026, 3, 13, 9, 0, 0, 0, time.UTC)))
	})

	It("honours the timezone", func() {
		from := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
		times, err := scheduler.NextTimes("0 9 * * *", "America/Toronto", from, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(times[0]).To(BeTemporally("==", time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC)))
	})

	It("rejects a malformed expression", func() {
		_, err := scheduler.NextTimes("61 * * * *", "UTC", time.Now(), 1)
		Expect(err).To(HaveOccurred())
	})
})
