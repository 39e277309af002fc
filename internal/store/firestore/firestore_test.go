package firestore

import (
	"context"
	"os"
	"strings"
	"testing"

	"spendcast/internal/core"
	"spendcast/internal/store"
	"spendcast/internal/store/storetest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Each store gets its own project so emulator state never leaks between tests.
func newEmulatorStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	project := "spendcast-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	s, err := Open(context.Background(), project, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newEmulatorStore(t) })
}

func TestLastByID(t *testing.T) {
	txs := []core.Transaction{
		{ID: "a", Description: "first"},
		{ID: "b"},
		{ID: "a", Description: "second"},
	}
	got := lastByID(txs)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "second", got[0].Description)
	assert.Equal(t, "b", got[1].ID)
}
