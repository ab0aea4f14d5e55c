package notifier_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/notifier"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type recorder struct {
	mu      sync.Mutex
	bodies  []string
	handler func(call int, w http.ResponseWriter)
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	r.bodies = append(r.bodies, string(body))
	call := len(r.bodies)
	r.mu.Unlock()
	r.handler(call, w)
}

func (r *recorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

var _ = Describe("Webhook", func() {
	var (
		rec     *recorder
		server  *httptest.Server
		payload model.MessagePayload
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		rec = &recorder{}
		server = httptest.NewServer(rec)
		DeferCleanup(server.Close)
		payload = model.MessagePayload{Text: "hi", Body: []byte(`{"text":"hi"}`)}
	})

	newWebhook := func(attempts int, timeout time.Duration) *notifier.Webhook {
		return notifier.New(notifier.Config{
			URL:         server.URL,
			Timeout:     timeout,
			MaxAttempts: attempts,
			MinBackoff:  time.Millisecond,
			MaxBackoff:  2 * time.Millisecond,
		})
	}

	It("posts the exact body and returns a receipt", func() {
		rec.handler = func(_ int, w http.ResponseWriter) { _, _ = io.WriteString(w, "ok") }

		receipt, err := newWebhook(3, time.Second).Deliver(ctx, payload)
		Expect(err).NotTo(HaveOccurred())
		Expect(receipt.Attempts).To(Equal(1))
		Expect(receipt.StatusCode).To(Equal(http.StatusOK))
		Expect(receipt.DeliveredAt).NotTo(BeZero())
		Expect(rec.bodies).To(Equal([]string{`{"text":"hi"}`}))
	})

	It("retries timeouts and delivers once", func() {
		rec.handler = func(call int, w http.ResponseWriter) {
			if call <= 2 {
				time.Sleep(100 * time.Millisecond)
			}
			_, _ = io.WriteString(w, "ok")
		}

		receipt, err := newWebhook(3, 50*time.Millisecond).Deliver(ctx, payload)
		Expect(err).NotTo(HaveOccurred())
		Expect(receipt.Attempts).To(Equal(3))
	})

	It("retries server errors and gives up as retryable", func() {
		rec.handler = func(_ int, w http.ResponseWriter) { w.WriteHeader(http.StatusBadGateway) }

		_, err := newWebhook(3, time.Second).Deliver(ctx, payload)
		Expect(err).To(MatchError(model.ErrDeliveryFailed))

		var derr *model.DeliveryError
		Expect(errors.As(err, &derr)).To(BeTrue())
		Expect(derr.Retryable).To(BeTrue())
		Expect(derr.StatusCode).To(Equal(http.StatusBadGateway))
		Expect(derr.Attempts).To(Equal(3))
		Expect(rec.calls()).To(Equal(3))
	})

	It("does not retry client errors", func() {
		rec.handler = func(_ int, w http.ResponseWriter) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, "no_service")
		}

		_, err := newWebhook(3, time.Second).Deliver(ctx, payload)
		var derr *model.DeliveryError
		Expect(errors.As(err, &derr)).To(BeTrue())
		Expect(derr.Retryable).To(BeFalse())
		Expect(derr.Error()).To(ContainSubstring("no_service"))
		Expect(rec.calls()).To(Equal(1))
	})

	It("makes a single attempt for best-effort webhooks", func() {
		rec.handler = func(_ int, w http.ResponseWriter) { w.WriteHeader(http.StatusServiceUnavailable) }

		_, err := newWebhook(1, time.Second).Deliver(ctx, payload)
		Expect(err).To(MatchError(model.ErrDeliveryFailed))
		Expect(rec.calls()).To(Equal(1))
	})
})
