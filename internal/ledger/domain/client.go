// Package domain defines the boundary between the event sequencer and the
// append-only ledger.
package domain

import (
	"context"
	"errors"
)

// Submission is one supply chain update written to the ledger. Sequence is the
// per-account nonce assigned by the sequencer.
type Submission struct {
	SubjectID  string
	StageLabel string
	Location   string
	Sequence   uint64
}

// Receipt confirms an accepted submission.
type Receipt struct {
	TxID        string
	Sequence    uint64
	BlockNumber uint64
}

// Client submits updates on behalf of a single signing account. Submit blocks
// until the ledger confirms the update or fails.
type Client interface {
	Account() string
	NextSequence(ctx context.Context) (uint64, error)
	Submit(ctx context.Context, sub Submission) (Receipt, error)
}

var (
	ErrReverted         = errors.New("ledger transaction reverted")
	ErrSequenceMismatch = errors.New("ledger sequence mismatch")
	ErrReceiptTimeout   = errors.New("ledger receipt timeout")
)
