package txsubmit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"numsync/core/types"
	"numsync/session"
)

type fakeExecutor struct {
	calls [][]types.Call
	txID  string
	err   error
}

func (f *fakeExecutor) Execute(ctx context.Context, sess session.Session, calls []types.Call) (string, error) {
	f.calls = append(f.calls, calls)
	if f.err != nil {
		return "", f.err
	}
	return f.txID, nil
}

func liveSession() *session.Credential {
	return &session.Credential{
		Token:   "opaque",
		Addr:    "0xabc",
		User:    "player1",
		Expires: time.Now().Add(time.Hour),
	}
}

func TestSubmitHappyPath(t *testing.T) {
	exec := &fakeExecutor{txID: "0xdeadbeef"}
	s, err := New(exec)
	require.NoError(t, err)

	calls := StartGameCalls("0xvrf", "0xgame", 7)
	txID, err := s.Submit(context.Background(), liveSession(), calls)
	require.NoError(t, err)
	require.Equal(t, "0xdeadbeef", txID)
	require.Len(t, exec.calls, 1)
	require.Equal(t, calls, exec.calls[0])
}

func TestSubmitNeverRetries(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("execution reverted")}
	s, err := New(exec)
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), liveSession(), ClaimRewardCalls("0xgame", 42))
	require.Error(t, err)
	require.Len(t, exec.calls, 1)
}

func TestSubmitRejectsExpiredSession(t *testing.T) {
	exec := &fakeExecutor{txID: "0x1"}
	s, err := New(exec)
	require.NoError(t, err)

	stale := liveSession()
	stale.Expires = time.Now().Add(-time.Minute)
	_, err = s.Submit(context.Background(), stale, ClaimRewardCalls("0xgame", 42))
	require.Error(t, err)
	require.Empty(t, exec.calls)
}

func TestSubmitRejectsEmptyBatch(t *testing.T) {
	exec := &fakeExecutor{txID: "0x1"}
	s, err := New(exec)
	require.NoError(t, err)
	_, err = s.Submit(context.Background(), liveSession(), nil)
	require.Error(t, err)
	require.Empty(t, exec.calls)
}

func TestClassifyInsufficientBalance(t *testing.T) {
	// Wording varies by signer version; only the substring is stable.
	for _, msg := range []string{
		"Insufficient balance for transfer",
		"error: insufficient funds to cover fee",
		"account has INSUFFICIENT allowance",
	} {
		require.Equal(t, ClassInsufficientBalance, Classify(errors.New(msg)), msg)
	}
}

func TestClassifyCategories(t *testing.T) {
	cases := map[string]ErrorClass{
		"contract not deployed at address":  ClassNotDeployed,
		"vrf request timed out":             ClassRandomnessFailed,
		"execution reverted: assert failed": ClassExecutionFailed,
		"connection reset by peer":          ClassUnknown,
	}
	for msg, want := range cases {
		require.Equal(t, want, Classify(errors.New(msg)), msg)
	}
}

func TestSubmitErrorCarriesClass(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("insufficient balance")}
	s, err := New(exec)
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), liveSession(), ClaimRewardCalls("0xgame", 42))
	require.Error(t, err)
	require.Equal(t, ClassInsufficientBalance, ClassOf(err))
	require.Equal(t, "Insufficient balance to complete this action.", ClassOf(err).UserMessage())
}

func TestBatchComposition(t *testing.T) {
	start := StartGameCalls("0xvrf", "0xgame", 7)
	require.Len(t, start, 2)
	require.Equal(t, "request_randomness", start[0].Entrypoint)
	require.Equal(t, "start_game", start[1].Entrypoint)

	buy := BuyGameCalls("0xtoken", "0xgame", "5000000000000000000")
	require.Len(t, buy, 2)
	require.Equal(t, "approve", buy[0].Entrypoint)
	require.Equal(t, []string{"0xgame", "5000000000000000000"}, buy[0].Calldata)
	require.Equal(t, "buy_game", buy[1].Entrypoint)

	move := SetSlotCalls("0xvrf", "0xgame", 42, 3)
	require.Equal(t, "request_randomness", move[0].Entrypoint)
	require.Equal(t, "set_slot", move[1].Entrypoint)
	require.Equal(t, []string{"42", "3"}, move[1].Calldata)
}
