package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rawdatain/backoffice/internal/shared"
	"github.com/rawdatain/backoffice/jobs"
)

func TestTriggerRejectsUnknownJobsAndBadMonths(t *testing.T) {
	c := NewJobsCLI("127.0.0.1:0")
	t.Cleanup(func() { _ = c.Close() })

	_, err := c.Trigger(context.Background(), "inventory:revalue", TriggerOptions{})
	require.ErrorContains(t, err, "unsupported job")

	_, err = c.Trigger(context.Background(), jobs.TaskProfitRollup, TriggerOptions{Month: "March"})
	require.True(t, errors.Is(err, shared.ErrValidation))
}

func TestNilCLIIsNotConfigured(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), jobs.TaskProfitRollup, TriggerOptions{})
	require.ErrorContains(t, err, "not configured")
	_, err = c.InspectQueue(context.Background())
	require.ErrorContains(t, err, "not configured")
}
