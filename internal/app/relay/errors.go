package relay

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBadPayload   = errors.New("bad payload")
	ErrMissingField = errors.New("missing required field")
	ErrNotInRoom    = errors.New("target is not in room")
	ErrUnknownEvent = errors.New("unknown event")
)

func missing(fields ...string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(fields, ", "))
}
