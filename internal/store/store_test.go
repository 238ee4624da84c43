package store

import "testing"

// These tests require a live Postgres instance and so are skipped by
// default. Run manually against a disposable database when validating a
// Store change.

func TestListActiveOnlyReturnsActiveStrategies(t *testing.T) {
	t.Skip("requires a PostgreSQL database - run manually against a disposable instance")
}

func TestAppendTradeAccumulatesRealizedProfitOnSuccess(t *testing.T) {
	t.Skip("requires a PostgreSQL database - run manually against a disposable instance")
}

func TestUpdatePositionMergesIntoExistingPerpConfig(t *testing.T) {
	t.Skip("requires a PostgreSQL database - run manually against a disposable instance")
}

func TestSealedRecordRoundTripsThroughPutSealedRecord(t *testing.T) {
	t.Skip("requires a PostgreSQL database - run manually against a disposable instance")
}
