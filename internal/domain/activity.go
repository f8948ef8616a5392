package domain

// ActivityKind distinguishes create from update submissions.
type ActivityKind string

const (
	ActivityCreate ActivityKind = "create"
	ActivityUpdate ActivityKind = "update"
)

// ActivityStatus is the final outcome of a submission.
type ActivityStatus string

const (
	ActivityConfirmed ActivityStatus = "confirmed"
	ActivityFailed    ActivityStatus = "failed"
)

// Activity records one submitted mutation.
// Corresponds to token_activity in PostgreSQL and ClickHouse.
type Activity struct {
	ID          string         // PRIMARY KEY, deterministic hash
	Kind        ActivityKind   // create | update
	Mint        string         // mint address
	Identity    string         // fee payer / authority address
	Signature   string         // transaction signature, empty if never submitted
	ExplorerURL string         // link to the transaction, empty without signature
	Status      ActivityStatus // confirmed | failed
	Error       string         // failure reason
	CreatedAt   int64          // Unix timestamp in milliseconds
}
