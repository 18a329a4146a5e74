package credit

import (
	"math"
	"strings"
)

// Plan computes the effect of adj on balance without touching storage.
// AdjustTx runs it under the user row lock.
func Plan(balance int64, adj Adjustment) (Result, error) {
	if adj.Delta == 0 {
		return Result{}, ErrInvalidAmount
	}
	if !adj.Type.Valid() {
		return Result{}, ErrInvalidType
	}
	if adj.Type == TxTypeAdjustment && strings.TrimSpace(adj.Reason) == "" {
		return Result{}, ErrReasonRequired
	}
	if adj.Delta > 0 && balance > math.MaxInt64-adj.Delta {
		return Result{}, ErrInvalidAmount
	}

	next := balance + adj.Delta
	if next >= 0 {
		return Result{NewBalance: next, Applied: adj.Delta}, nil
	}
	if !adj.FloorAtZero {
		return Result{}, ErrInsufficientCredits
	}
	return Result{NewBalance: 0, Applied: -balance, Deficit: -next}, nil
}
