package status_test

import (
	"context"
	"fmt"
	"time"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/status"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Event", func() {
	at := time.Date(2026, 3, 10, 9, 30, 0, 123, time.UTC)

	It("round-trips through stream fields as Redis returns them", func() {
		run := model.RunRecord{
			ID:           1789,
			Trigger:      model.TriggerSlack,
			State:        model.RunStateFailed,
			Error:        "delivery failed",
			TicketCount:  141,
			ClusterCount: 3,
		}
		event := status.EventFromRun(run, at)

		// Redis hands every field back as a string.
		values := map[string]any{}
		for k, v := range event.Values() {
			values[k] = fmt.Sprint(v)
		}

		Expect(status.EventFromValues(values)).To(Equal(event))
	})

	It("omits an empty error", func() {
		event := status.EventFromRun(model.RunRecord{ID: 1, State: model.RunStateFetching}, at)
		Expect(event.Values()).NotTo(HaveKey("error"))
	})

	It("tolerates malformed fields", func() {
		event := status.EventFromValues(map[string]any{"run_id": "x", "state": "analyzing"})
		Expect(event.RunID).To(BeZero())
		Expect(event.State).To(Equal(model.RunStateAnalyzing))
		Expect(event.At).To(BeZero())
	})
})

var _ = Describe("Nop", func() {
	It("accepts every event", func() {
		Expect(status.Nop{}.Publish(context.Background(), status.Event{})).To(Succeed())
	})
})
