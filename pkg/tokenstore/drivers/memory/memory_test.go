package memory_test

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/tabsession/pkg/tokenstore"
	"github.com/aussiebroadwan/tabsession/pkg/tokenstore/drivers/memory"
	"github.com/stretchr/testify/require"
)

func TestMedium(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	_, err := m.Get(ctx, "nope")
	require.ErrorIs(t, err, tokenstore.ErrNotFound)

	require.NoError(t, m.Set(ctx, "k", "v"))
	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)

	require.NoError(t, m.Delete(ctx, "k", "absent"))
	require.Zero(t, m.Len())
}
