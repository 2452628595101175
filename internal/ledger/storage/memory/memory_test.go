package memory

import (
	"testing"

	"github.com/finledger/utxoledger/internal/ledger/storage"
	"github.com/finledger/utxoledger/internal/ledger/storage/conformance"
)

func TestConformance(t *testing.T) {
	conformance.Run(t, "memory", func(t *testing.T) storage.Store {
		return New()
	})
}
