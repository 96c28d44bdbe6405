package bot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/mattermost/mattermost-server/v6/model"
)

// DeliveryKind - why a message could not be delivered.
type DeliveryKind int

const (
	DeliveryOther DeliveryKind = iota
	DeliveryTimeout
	DeliveryBadRequest
)

func (k DeliveryKind) String() string {
	switch k {
	case DeliveryTimeout:
		return "timeout"
	case DeliveryBadRequest:
		return "bad request"
	default:
		return "other"
	}
}

// DeliveryError - a rendered message did not reach the chat.
// It never affects poll state, the message can be rendered and sent again.
type DeliveryError struct {
	Kind DeliveryKind
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed (%s): %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func newDeliveryError(resp *model.Response, err error) *DeliveryError {
	kind := DeliveryOther
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		kind = DeliveryTimeout
	case resp != nil && resp.StatusCode == http.StatusBadRequest:
		kind = DeliveryBadRequest
	}
	return &DeliveryError{Kind: kind, Err: err}
}
