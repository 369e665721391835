package service

import (
	"strconv"
	"strings"
)

// receiptHandle identifies one delivery of a message. It is rendered as
// "<message id>/<delivery count>" and becomes stale as soon as the message is
// delivered again.
type receiptHandle struct {
	MessageID  string
	Deliveries int
}

func (h receiptHandle) String() string {
	return h.MessageID + "/" + strconv.Itoa(h.Deliveries)
}

func parseReceiptHandle(s string) (receiptHandle, error) {
	if s == "" {
		return receiptHandle{}, errMissingParameter("ReceiptHandle")
	}
	id, count, ok := strings.Cut(s, "/")
	if !ok || id == "" {
		return receiptHandle{}, errReceiptHandleInvalid(s)
	}
	n, err := strconv.Atoi(count)
	if err != nil || n < 1 {
		return receiptHandle{}, errReceiptHandleInvalid(s)
	}
	return receiptHandle{MessageID: id, Deliveries: n}, nil
}
