package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/voltlog/internal/device"
	"github.com/srg/voltlog/internal/sample"
	"github.com/srg/voltlog/session"
)

// FormatUserError turns an error chain into a one-line message for the terminal
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var notFound *device.NotFoundError
	var decodeErr *sample.DecodeError

	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off or no adapter is available"
	case errors.As(err, &notFound) && notFound.Resource == "device":
		if len(notFound.UUIDs) > 0 {
			return fmt.Sprintf("device %s not found; make sure it is powered on and advertising", notFound.UUIDs[0])
		}
		return "device not found; make sure it is powered on and advertising"
	case errors.Is(err, session.ErrConnectionLost):
		return "connection lost before enough samples were collected; no file written"
	case errors.As(err, &decodeErr):
		return fmt.Sprintf("sample %d (%q) is not a hex reading; no file written", decodeErr.Index, decodeErr.Raw)
	case errors.Is(err, device.ErrTimeout):
		return "operation timed out: " + rootCause(err).Error()
	}

	return capitalize(err.Error())
}

// rootCause follows single-error Unwrap chains to the innermost error
func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
