package mappings

import "time"

// AccountMapping links a posting key of a source module to a ledger account.
type AccountMapping struct {
	Module    string    `json:"module"`
	Key       string    `json:"key"`
	AccountID int64     `json:"accountId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
