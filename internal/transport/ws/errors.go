package ws

import (
	"errors"
	"fmt"

	"rollio/internal/model"
	"rollio/internal/protocol"
)

var errEmptyPayload = errors.New("empty payload")

func errUnexpected(t protocol.MessageType) error {
	return fmt.Errorf("unexpected message type %q", t)
}

// wrapValidation tags protocol-shape failures with the validation sentinel so
// they ack with a validation_error code.
func wrapValidation(err error) error {
	return fmt.Errorf("%v: %w", err, model.ErrValidation)
}
