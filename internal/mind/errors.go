package mind

import "errors"

var (
	// ErrLedgerNotFound is returned by LoadLedger when no Ledger node
	// matches the given session and project tags.
	ErrLedgerNotFound = errors.New("mind: ledger not found")
	// ErrNotALedger is returned when UpdateLedger targets a node that
	// isn't of type Ledger.
	ErrNotALedger = errors.New("mind: node is not a ledger")
	// ErrObserveRateLimited is returned by ObserveNode when the same node
	// id was last observed less than observeMinInterval ago (spec §8:
	// "observe called more frequently than 500ms apart is rate-limited").
	ErrObserveRateLimited = errors.New("mind: observe rate limited, retry after 500ms")
)
