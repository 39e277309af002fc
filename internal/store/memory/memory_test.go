package memory

import (
	"testing"

	"spendcast/internal/store"
	"spendcast/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}
