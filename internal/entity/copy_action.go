package entity

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

const (
	CopyActionPlace  = "place"
	CopyActionCancel = "cancel"

	CopyActionStatusDone   = "done"
	CopyActionStatusFailed = "failed"
)

// CopyAction is one replication attempt as recorded in the audit journal.
// It carries no engine state: the dedup ledger and reconciliation never read
// from it.
type CopyAction struct {
	ID            string           `db:"id" json:"id"`
	LeaderID      string           `db:"leader_id" json:"leader_id"`
	FollowerID    string           `db:"follower_id" json:"follower_id"`
	Action        string           `db:"action" json:"action"`
	Market        string           `db:"market" json:"market"`
	Side          string           `db:"side" json:"side"`
	Size          decimal.Decimal  `db:"size" json:"size"`
	Price         *decimal.Decimal `db:"price" json:"price"`
	ClientOrderID string           `db:"client_order_id" json:"client_order_id"`
	Status        string           `db:"status" json:"status"`
	ErrorMessage  sql.NullString   `db:"error_message" json:"error_message"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
}

func (a CopyAction) TableName() string {
	return "copy_actions"
}

type CopyActionEvent struct {
	RetryCount int        `json:"retry"`
	Data       CopyAction `json:"data"`
}
