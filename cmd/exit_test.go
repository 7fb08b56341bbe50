package cmd

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tanq16/surge/internal/utils"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, ExitOK},
		{"usage", &usageError{errors.New("bad flag")}, ExitUsage},
		{"invalid job", fmt.Errorf("%w: unsupported scheme", utils.ErrInvalidJob), ExitUsage},
		{"precondition", &utils.PreconditionError{URL: "u", Err: utils.ErrRangeUnsupported}, ExitPrecondition},
		{"transport", fmt.Errorf("batch 1: %w", &utils.TransportError{Op: "fetch", Status: 404, Err: utils.ErrNotFound}), ExitTransport},
		{"io", &utils.IOError{Op: "write", Path: "out", Err: errors.New("disk full")}, ExitIO},
		{"canceled", &utils.TransportError{Op: "fetch", Err: context.Canceled}, ExitGeneral},
		{"other", errors.New("boom"), ExitGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestRootRejectsMissingURL(t *testing.T) {
	rootCmd.SetArgs([]string{})
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	if ExitCode(err) != ExitUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}
