// Package codes issues the human-readable identifiers shown to operators.
// Uniqueness is still enforced by the stores that persist them.
package codes

import (
	"context"
	"fmt"
	"sync/atomic"
)

const (
	assetPrefix   = "AST"
	requestPrefix = "CR"
)

func format(prefix string, n int64) string {
	return fmt.Sprintf("%s-%05d", prefix, n)
}

// Sequence issues codes from process-local counters.
type Sequence struct {
	assets    atomic.Int64
	requests  atomic.Int64
	approvals atomic.Int64
}

func NewSequence() *Sequence {
	return &Sequence{}
}

func (s *Sequence) NextAssetCode(context.Context) (string, error) {
	return format(assetPrefix, s.assets.Add(1)), nil
}

func (s *Sequence) NextRequestCode(context.Context) (string, error) {
	return format(requestPrefix, s.requests.Add(1)), nil
}

// NextApprovalSequence returns the next position in approval apply order.
func (s *Sequence) NextApprovalSequence(context.Context) (int64, error) {
	return s.approvals.Add(1), nil
}
