package cmd

import (
	"context"
	"errors"

	"github.com/tanq16/surge/internal/utils"
)

const (
	ExitOK           = 0
	ExitGeneral      = 1
	ExitUsage        = 2
	ExitPrecondition = 3
	ExitTransport    = 4
	ExitIO           = 5
)

// ExitCode classifies err into the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var (
		usageErr *usageError
		preErr   *utils.PreconditionError
		ioErr    *utils.IOError
		tErr     *utils.TransportError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return ExitGeneral
	case errors.As(err, &usageErr), errors.Is(err, utils.ErrInvalidJob):
		return ExitUsage
	case errors.As(err, &preErr):
		return ExitPrecondition
	case errors.As(err, &ioErr):
		return ExitIO
	case errors.As(err, &tErr):
		return ExitTransport
	}
	return ExitGeneral
}
