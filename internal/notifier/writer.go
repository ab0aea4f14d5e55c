package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
)

// Writer prints payloads instead of posting them. Used for dry runs.
type Writer struct {
	out io.Writer
	now func() time.Time
}

func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out, now: time.Now}
}

func (n *Writer) Deliver(ctx context.Context, payload model.MessagePayload) (*model.DeliveryReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload.Body, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(payload.Body)
	}
	if _, err := fmt.Fprintf(n.out, "%s\n", pretty.Bytes()); err != nil {
		return nil, &model.DeliveryError{Attempts: 1, Err: err}
	}

	return &model.DeliveryReceipt{DeliveredAt: n.now(), Attempts: 1}, nil
}
