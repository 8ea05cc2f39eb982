package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Handle decodes one JSON request frame, dispatches it and encodes the
// Reply. A frame that is not a JSON request gets a 400 reply rather than an
// error, so the client always learns why it was rejected.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	var reply Reply
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		reply = Reply{
			Code: http.StatusBadRequest,
			Body: messageBody{Status: StatusError, Message: fmt.Errorf("%w: %v", ErrInvalidRequest, err).Error()},
		}
	} else {
		reply = d.Dispatch(ctx, req)
	}

	out, err := json.Marshal(reply)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %q reply: %w", req.Op, err)
	}
	return out, nil
}
