// Package memory is an in-process ledger used in development mode and tests.
package memory

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/smallbiznis/tracechain/internal/ledger/domain"
	"golang.org/x/crypto/sha3"
)

// Client accepts a submission only when it carries exactly the next sequence
// number, like an account nonce. Failed submissions do not consume a number.
type Client struct {
	mu          sync.Mutex
	account     string
	next        uint64
	calls       int
	failOn      map[int]error
	submissions []domain.Submission
}

func New(account string, start uint64) *Client {
	return &Client{
		account: account,
		next:    start,
		failOn:  make(map[int]error),
	}
}

func (c *Client) Account() string {
	return c.account
}

func (c *Client) NextSequence(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next, nil
}

func (c *Client) Submit(ctx context.Context, sub domain.Submission) (domain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.Receipt{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if err, ok := c.failOn[c.calls]; ok {
		return domain.Receipt{}, err
	}
	if sub.Sequence != c.next {
		return domain.Receipt{}, fmt.Errorf("%w: expected %d, got %d", domain.ErrSequenceMismatch, c.next, sub.Sequence)
	}

	c.next++
	c.submissions = append(c.submissions, sub)
	return domain.Receipt{
		TxID:        txID(c.account, sub),
		Sequence:    sub.Sequence,
		BlockNumber: uint64(len(c.submissions)),
	}, nil
}

// FailOn makes the n-th Submit call (1-based, counted over the client's
// lifetime) return err.
func (c *Client) FailOn(n int, err error) {
	c.mu.Lock()
	c.failOn[n] = err
	c.mu.Unlock()
}

// Advance simulates another writer using count sequence numbers.
func (c *Client) Advance(count uint64) {
	c.mu.Lock()
	c.next += count
	c.mu.Unlock()
}

// Submissions returns the accepted submissions in order.
func (c *Client) Submissions() []domain.Submission {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Submission, len(c.submissions))
	copy(out, c.submissions)
	return out
}

func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func txID(account string, sub domain.Submission) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(account))
	h.Write([]byte(sub.SubjectID))
	h.Write([]byte(sub.StageLabel))
	h.Write([]byte(sub.Location))
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], sub.Sequence)
	h.Write(seq[:])
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

var _ domain.Client = (*Client)(nil)
