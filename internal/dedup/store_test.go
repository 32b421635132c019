package dedup_test

import (
	"testing"

	"issuebot/internal/dedup"
	"issuebot/internal/dedup/storetest"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) dedup.Store { return dedup.NewMemoryStore() })
}
