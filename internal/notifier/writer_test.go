package notifier_test

import (
	"bytes"
	"context"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/notifier"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Writer", func() {
	It("prints the indented body", func() {
		var out bytes.Buffer
		receipt, err := notifier.NewWriter(&out).Deliver(context.Background(), model.MessagePayload{
			Text: "summary",
			Body: []byte(`{"text":"summary"}`),
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(receipt.Attempts).To(Equal(1))
		Expect(out.String()).To(Equal("{\n  \"text\": \"summary\"\n}\n"))
	})

	It("honours a cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var out bytes.Buffer
		_, err := notifier.NewWriter(&out).Deliver(ctx, model.MessagePayload{Body: []byte(`{}`)})
		Expect(err).To(MatchError(context.Canceled))
		Expect(out.Len()).To(BeZero())
	})
})
