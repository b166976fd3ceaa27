package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "casegate/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	for _, e := range []audit.Event{
		{Action: audit.ActionIntakeAccepted, Fingerprint: "a"},
		{Action: audit.ActionIntakeDuplicate, Fingerprint: "a"},
		{Action: audit.ActionIntakeRejectedOutlier, Fingerprint: "b"},
	} {
		require.NoError(t, s.Append(ctx, e))
	}

	byFP, err := s.ListByFingerprint(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, byFP, 2)

	recent, err := s.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, audit.ActionIntakeRejectedOutlier, recent[1].Action)

	all, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	s.Clear()
	all, err = s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
