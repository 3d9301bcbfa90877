// Package txsubmit assembles ordered multi-call batches and hands them to the
// external signing capability. The ledger applies a batch atomically. This
// package adds validation and outcome classification; it never resubmits a
// failed batch.
package txsubmit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"numsync/core/types"
	"numsync/observability"
	"numsync/session"
)

// Executor is the external transaction capability: it signs and broadcasts an
// ordered batch under the given session and returns the transaction id.
type Executor interface {
	Execute(ctx context.Context, sess session.Session, calls []types.Call) (string, error)
}

// Submitter validates and submits multi-call batches.
type Submitter struct {
	exec Executor
	log  *slog.Logger
}

// Option configures the submitter.
type Option func(*Submitter)

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Submitter) {
		if log != nil {
			s.log = log
		}
	}
}

// New builds a submitter over the given executor.
func New(exec Executor, opts ...Option) (*Submitter, error) {
	if exec == nil {
		return nil, fmt.Errorf("txsubmit: executor required")
	}
	s := &Submitter{exec: exec, log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Submit sends one atomic batch. The returned transaction id only proves
// acceptance: the effect reaches the local cache through the next poll or
// push cycle, never synchronously, so callers must tolerate the propagation
// delay.
func (s *Submitter) Submit(ctx context.Context, sess session.Session, calls []types.Call) (string, error) {
	if sess == nil {
		return "", &SubmitError{Class: ClassUnknown, Err: fmt.Errorf("txsubmit: session required")}
	}
	if sess.IsRevoked() {
		return "", &SubmitError{Class: ClassUnknown, Err: fmt.Errorf("txsubmit: session revoked")}
	}
	if !time.Now().Before(sess.ExpiresAt()) {
		return "", &SubmitError{Class: ClassUnknown, Err: fmt.Errorf("txsubmit: session expired")}
	}
	if len(calls) == 0 {
		return "", &SubmitError{Class: ClassUnknown, Err: fmt.Errorf("txsubmit: empty call batch")}
	}
	for i, call := range calls {
		if call.Contract == "" || call.Entrypoint == "" {
			return "", &SubmitError{Class: ClassUnknown, Err: fmt.Errorf("txsubmit: call %d missing target", i)}
		}
	}

	txID, err := s.exec.Execute(ctx, sess, calls)
	if err != nil {
		class := Classify(err)
		observability.MirrorMetrics().TxSubmissions.WithLabelValues(class.String()).Inc()
		s.log.Warn("transaction rejected",
			"address", sess.Address(),
			"calls", len(calls),
			"class", class.String(),
			"err", err,
		)
		return "", &SubmitError{Class: class, Err: err}
	}
	observability.MirrorMetrics().TxSubmissions.WithLabelValues("ok").Inc()
	s.log.Info("transaction submitted", "address", sess.Address(), "calls", len(calls), "tx", txID)
	return txID, nil
}

// StartGameCalls composes the batch that opens a game: seed randomness, then
// start. Order matters; the ledger applies both or neither.
func StartGameCalls(vrfContract, gameContract string, tournamentID uint64) []types.Call {
	return []types.Call{
		{Contract: vrfContract, Entrypoint: "request_randomness", Calldata: []string{gameContract}},
		{Contract: gameContract, Entrypoint: "start_game", Calldata: []string{strconv.FormatUint(tournamentID, 10)}},
	}
}

// BuyGameCalls composes the purchase batch: approve the spend, then buy.
func BuyGameCalls(tokenContract, gameContract, price string) []types.Call {
	return []types.Call{
		{Contract: tokenContract, Entrypoint: "approve", Calldata: []string{gameContract, price}},
		{Contract: gameContract, Entrypoint: "buy_game", Calldata: nil},
	}
}

// SetSlotCalls composes the move batch: seed randomness for the next number,
// then place the current one.
func SetSlotCalls(vrfContract, gameContract string, tokenID uint64, slot uint8) []types.Call {
	return []types.Call{
		{Contract: vrfContract, Entrypoint: "request_randomness", Calldata: []string{gameContract}},
		{Contract: gameContract, Entrypoint: "set_slot", Calldata: []string{
			strconv.FormatUint(tokenID, 10),
			strconv.FormatUint(uint64(slot), 10),
		}},
	}
}

// ClaimRewardCalls composes the single-call claim batch.
func ClaimRewardCalls(gameContract string, tokenID uint64) []types.Call {
	return []types.Call{
		{Contract: gameContract, Entrypoint: "claim_reward", Calldata: []string{strconv.FormatUint(tokenID, 10)}},
	}
}
