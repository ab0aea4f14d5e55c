package model_test

import (
	"errors"
	"fmt"
	"time"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("TimeWindow", func() {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	DescribeTable("Validate",
		func(w model.TimeWindow, valid bool) {
			err := w.Validate(now, model.DefaultMaxWindow, model.DefaultClockSkew)
			if valid {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(MatchError(model.ErrInvalidWindow))
			}
		},
		Entry("trailing 24h", model.TrailingWindow(now, 24*time.Hour), true),
		Entry("end within skew", model.TrailingWindow(now.Add(time.Minute), time.Hour), true),
		Entry("exactly 30 days", model.TrailingWindow(now, model.DefaultMaxWindow), true),
		Entry("empty", model.TimeWindow{Start: now, End: now}, false),
		Entry("inverted", model.TimeWindow{Start: now, End: now.Add(-time.Hour)}, false),
		Entry("end in the future", model.TrailingWindow(now.Add(time.Hour), time.Hour), false),
		Entry("longer than 30 days", model.TrailingWindow(now, model.DefaultMaxWindow+time.Hour), false),
	)

	DescribeTable("HoursWindow",
		func(hours int, valid bool) {
			w, err := model.HoursWindow(now, hours, model.DefaultMaxWindow)
			if !valid {
				Expect(err).To(MatchError(model.ErrInvalidWindow))
				return
			}
			Expect(err).NotTo(HaveOccurred())
			Expect(w.Duration()).To(Equal(time.Duration(hours) * time.Hour))
			Expect(w.End).To(Equal(now))
		},
		Entry("one hour", 1, true),
		Entry("the maximum", 720, true),
		Entry("zero", 0, false),
		Entry("negative", -3, false),
		Entry("one past the maximum", 721, false),
		Entry("a count that overflows a duration", 5124096, false),
	)

	It("is half-open", func() {
		w := model.TrailingWindow(now, time.Hour)
		Expect(w.Contains(w.Start)).To(BeTrue())
		Expect(w.Contains(w.End)).To(BeFalse())
		Expect(w.Duration()).To(Equal(time.Hour))
	})
})

var _ = Describe("Severity", func() {
	DescribeTable("ParseSeverity",
		func(in string, expected model.Severity, ok bool) {
			sev, known := model.ParseSeverity(in)
			Expect(sev).To(Equal(expected))
			Expect(known).To(Equal(ok))
		},
		Entry("lower case", "critical", model.SeverityCritical, true),
		Entry("mixed case and spaces", " High ", model.SeverityHigh, true),
		Entry("low", "low", model.SeverityLow, true),
		Entry("unknown falls back to medium", "urgent", model.SeverityMedium, false),
		Entry("empty falls back to medium", "", model.SeverityMedium, false),
	)
})

var _ = Describe("SortClusters", func() {
	It("orders by severity, then size, then title", func() {
		clusters := []model.Cluster{
			{Title: "b", Severity: model.SeverityLow, TicketIDs: []int64{1, 2, 3}},
			{Title: "z", Severity: model.SeverityHigh, TicketIDs: []int64{4}},
			{Title: "a", Severity: model.SeverityHigh, TicketIDs: []int64{5}},
			{Title: "c", Severity: model.SeverityHigh, TicketIDs: []int64{6, 7}},
			{Title: "d", Severity: model.SeverityCritical, TicketIDs: []int64{8}},
		}
		model.SortClusters(clusters)

		var titles []string
		for _, c := range clusters {
			titles = append(titles, c.Title)
		}
		Expect(titles).To(Equal([]string{"d", "c", "a", "z", "b"}))
	})
})

var _ = Describe("DeliveryError", func() {
	It("matches ErrDeliveryFailed and keeps the cause", func() {
		cause := errors.New("i/o timeout")
		err := fmt.Errorf("deliver: %w", &model.DeliveryError{Retryable: true, Attempts: 3, Err: cause})

		Expect(errors.Is(err, model.ErrDeliveryFailed)).To(BeTrue())
		Expect(errors.Is(err, cause)).To(BeTrue())

		var de *model.DeliveryError
		Expect(errors.As(err, &de)).To(BeTrue())
		Expect(de.Retryable).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("retryable, attempts=3"))
	})
})

var _ = Describe("RunOutcome", func() {
	It("is succeeded only without error in the succeeded state", func() {
		Expect((&model.RunOutcome{Run: model.RunRecord{State: model.RunStateSucceeded}}).Succeeded()).To(BeTrue())
		Expect((&model.RunOutcome{Run: model.RunRecord{State: model.RunStateFailed}, Err: model.ErrFormat}).Succeeded()).To(BeFalse())
		var nilOutcome *model.RunOutcome
		Expect(nilOutcome.Succeeded()).To(BeFalse())
	})
})
