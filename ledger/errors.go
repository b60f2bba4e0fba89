package ledger

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

var (
	// ErrNoSigningAccount means no usable signer is configured for the
	// requested submission. This is operational misconfiguration, not a
	// client fault.
	ErrNoSigningAccount = errors.New("no signing account available")

	// ErrPollNotFound means the poll account does not exist on chain.
	ErrPollNotFound = errors.New("poll not found")

	// ErrInvalidPollID means the supplied poll id is not a valid account
	// address and cannot correspond to any poll.
	ErrInvalidPollID = errors.New("invalid poll id")

	// ErrOptionOutOfRange means the requested option index does not exist
	// on the poll.
	ErrOptionOutOfRange = errors.New("option index out of range")
)

// ContractRejectedError means the node received the transaction and refused
// it: the program's own rules (closed poll, vote cap, malformed options)
// rejected the operation. Distinct from ConnectivityError so callers can
// tell "your request was invalid" from "we could not reach the ledger".
type ContractRejectedError struct {
	Code    int
	Message string
}

func (e *ContractRejectedError) Error() string {
	return fmt.Sprintf("contract rejected transaction (code %d): %s", e.Code, e.Message)
}

// ConnectivityError means the ledger endpoint could not be reached or did
// not answer in time. The submission may or may not have been received;
// callers must not blindly retry state-changing operations.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("ledger unreachable during %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// classify splits an RPC failure into rejection vs connectivity. A
// *jsonrpc.RPCError proves the node answered, so the transaction itself was
// refused; anything else is transport.
func classify(op string, err error) error {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return &ContractRejectedError{Code: rpcErr.Code, Message: rpcErr.Message}
	}
	return &ConnectivityError{Op: op, Err: err}
}
