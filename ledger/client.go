// Package ledger binds the gateway to the polling program on chain. It owns
// instruction building, signing-account selection and the translation of
// RPC failures into the error kinds the gateway maps to responses.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/near/borsh-go"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"polling-gateway/models"
)

// Anchor-style instruction discriminators of the polling program.
var (
	createPollDiscriminator = []byte{182, 171, 112, 238, 6, 219, 14, 110}
	castVoteDiscriminator   = []byte{20, 212, 15, 189, 69, 180, 69, 151}
	closePollDiscriminator  = []byte{139, 213, 162, 65, 172, 150, 123, 56}
)

// RPCClient is the slice of the Solana RPC surface the gateway uses.
type RPCClient interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

type Client struct {
	rpc       RPCClient
	programID solana.PublicKey
	signers   *SignerRegistry
	throttle  *rate.Limiter
	timeout   time.Duration
	logger    zerolog.Logger
}

// SubmitResult reports an accepted submission. Acceptance means the node
// took the transaction for inclusion, not that it is finalized.
type SubmitResult struct {
	Signature   solana.Signature
	Signer      string
	SignerKey   solana.PublicKey
	PollAddress solana.PublicKey
}

func NewClient(endpoint string, programID solana.PublicKey, signers *SignerRegistry, qps float64, timeout time.Duration, logger zerolog.Logger) *Client {
	return NewClientWithRPC(rpc.New(endpoint), programID, signers, qps, timeout, logger)
}

// NewClientWithRPC is NewClient with an injected RPC transport, for tests.
func NewClientWithRPC(rpcClient RPCClient, programID solana.PublicKey, signers *SignerRegistry, qps float64, timeout time.Duration, logger zerolog.Logger) *Client {
	burst := int(qps)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		rpc:       rpcClient,
		programID: programID,
		signers:   signers,
		throttle:  rate.NewLimiter(rate.Limit(qps), burst),
		timeout:   timeout,
		logger:    logger,
	}
}

// pollID derives the program's poll identifier from the poll contents and
// the creating authority, matching the program's PDA scheme.
func pollID(title string, options []string, authority solana.PublicKey) uint64 {
	hasher := sha256.New()
	hasher.Write([]byte(title))
	for _, opt := range options {
		hasher.Write([]byte(opt))
	}
	hasher.Write(authority.Bytes())
	hash := hasher.Sum(nil)
	return binary.LittleEndian.Uint64(hash[:8])
}

func (c *Client) pollAddress(authority solana.PublicKey, id uint64) (solana.PublicKey, error) {
	idBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(idBytes, id)

	seeds := [][]byte{
		[]byte("poll"),
		authority.Bytes(),
		idBytes,
	}
	addr, _, err := solana.FindProgramAddress(seeds, c.programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive poll address: %w", err)
	}
	return addr, nil
}

func (c *Client) voterRecordAddress(poll, authority solana.PublicKey) (solana.PublicKey, error) {
	seeds := [][]byte{
		[]byte("voter"),
		poll.Bytes(),
		authority.Bytes(),
	}
	addr, _, err := solana.FindProgramAddress(seeds, c.programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive voter record address: %w", err)
	}
	return addr, nil
}

// CreatePoll submits the poll-creation transaction and returns the
// signature together with the derived poll address. The address doubles as
// the poll id for every later operation.
func (c *Client) CreatePoll(ctx context.Context, signerName, title string, options []string, maxVotesPerUser int) (SubmitResult, error) {
	signer, err := c.signers.Resolve(signerName)
	if err != nil {
		return SubmitResult{}, err
	}
	authority := signer.Key.PublicKey()

	id := pollID(title, options, authority)
	pollPubKey, err := c.pollAddress(authority, id)
	if err != nil {
		return SubmitResult{}, err
	}

	args := models.CreatePollArgs{
		PollID:          id,
		Title:           title,
		Options:         options,
		MaxVotesPerUser: uint8(maxVotesPerUser),
	}
	data, err := borsh.Serialize(args)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("failed to serialize create poll args: %w", err)
	}

	accounts := solana.AccountMetaSlice{
		{PublicKey: pollPubKey, IsSigner: false, IsWritable: true},
		{PublicKey: authority, IsSigner: true, IsWritable: true},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	}
	instruction := solana.NewInstruction(c.programID, accounts, append(createPollDiscriminator, data...))

	sig, err := c.submit(ctx, "createPoll", signer, instruction)
	if err != nil {
		return SubmitResult{}, err
	}

	c.logger.Info().
		Str("signer", signer.Name).
		Str("poll", pollPubKey.String()).
		Str("signature", sig.String()).
		Msg("poll created")

	return SubmitResult{
		Signature:   sig,
		Signer:      signer.Name,
		SignerKey:   authority,
		PollAddress: pollPubKey,
	}, nil
}

// CastVote submits a vote for optionIndex on the given poll. Open/closed
// state and the per-user vote cap are enforced by the program; a violation
// surfaces as *ContractRejectedError.
func (c *Client) CastVote(ctx context.Context, signerName, pollIDStr string, optionIndex int) (SubmitResult, error) {
	signer, err := c.signers.Resolve(signerName)
	if err != nil {
		return SubmitResult{}, err
	}
	authority := signer.Key.PublicKey()

	pollPubKey, err := parsePollID(pollIDStr)
	if err != nil {
		return SubmitResult{}, err
	}

	voterRecord, err := c.voterRecordAddress(pollPubKey, authority)
	if err != nil {
		return SubmitResult{}, err
	}

	data, err := borsh.Serialize(models.CastVoteArgs{OptionIndex: uint8(optionIndex)})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("failed to serialize cast vote args: %w", err)
	}

	accounts := solana.AccountMetaSlice{
		{PublicKey: pollPubKey, IsSigner: false, IsWritable: true},
		{PublicKey: voterRecord, IsSigner: false, IsWritable: true},
		{PublicKey: authority, IsSigner: true, IsWritable: true},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	}
	instruction := solana.NewInstruction(c.programID, accounts, append(castVoteDiscriminator, data...))

	sig, err := c.submit(ctx, "castVote", signer, instruction)
	if err != nil {
		return SubmitResult{}, err
	}

	c.logger.Info().
		Str("signer", signer.Name).
		Str("poll", pollPubKey.String()).
		Int("option", optionIndex).
		Str("signature", sig.String()).
		Msg("vote cast")

	return SubmitResult{
		Signature:   sig,
		Signer:      signer.Name,
		SignerKey:   authority,
		PollAddress: pollPubKey,
	}, nil
}

// ClosePoll submits the close instruction. Closing an already-closed poll
// is a contract-level rejection, not a gateway no-op.
func (c *Client) ClosePoll(ctx context.Context, signerName, pollIDStr string) (SubmitResult, error) {
	signer, err := c.signers.Resolve(signerName)
	if err != nil {
		return SubmitResult{}, err
	}
	authority := signer.Key.PublicKey()

	pollPubKey, err := parsePollID(pollIDStr)
	if err != nil {
		return SubmitResult{}, err
	}

	accounts := solana.AccountMetaSlice{
		{PublicKey: pollPubKey, IsSigner: false, IsWritable: true},
		{PublicKey: authority, IsSigner: true, IsWritable: false},
	}
	instruction := solana.NewInstruction(c.programID, accounts, closePollDiscriminator)

	sig, err := c.submit(ctx, "closePoll", signer, instruction)
	if err != nil {
		return SubmitResult{}, err
	}

	c.logger.Info().
		Str("signer", signer.Name).
		Str("poll", pollPubKey.String()).
		Str("signature", sig.String()).
		Msg("poll closed")

	return SubmitResult{
		Signature:   sig,
		Signer:      signer.Name,
		SignerKey:   authority,
		PollAddress: pollPubKey,
	}, nil
}

// GetPollDetails reads the poll account fresh from the ledger. There is no
// local cache; a stale snapshot is never served.
func (c *Client) GetPollDetails(ctx context.Context, pollIDStr string) (models.PollSnapshot, error) {
	pollPubKey, err := parsePollID(pollIDStr)
	if err != nil {
		return models.PollSnapshot{}, err
	}

	account, err := c.fetchPollAccount(ctx, pollPubKey)
	if err != nil {
		return models.PollSnapshot{}, err
	}

	return models.PollSnapshot{
		PollID:          pollPubKey.String(),
		Title:           account.Title,
		Options:         account.Options,
		Votes:           account.Votes,
		MaxVotesPerUser: int(account.MaxVotesPerUser),
		IsOpen:          account.IsOpen,
	}, nil
}

// GetVotes returns the counter for one option of a poll.
func (c *Client) GetVotes(ctx context.Context, pollIDStr string, optionIndex int) (uint64, error) {
	pollPubKey, err := parsePollID(pollIDStr)
	if err != nil {
		return 0, err
	}

	account, err := c.fetchPollAccount(ctx, pollPubKey)
	if err != nil {
		return 0, err
	}

	if optionIndex < 0 || optionIndex >= len(account.Votes) {
		return 0, fmt.Errorf("option %d on poll %s: %w", optionIndex, pollIDStr, ErrOptionOutOfRange)
	}
	return account.Votes[optionIndex], nil
}

func (c *Client) fetchPollAccount(ctx context.Context, pollPubKey solana.PublicKey) (models.PollAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.throttle.Wait(ctx); err != nil {
		return models.PollAccount{}, &ConnectivityError{Op: "getAccountInfo", Err: err}
	}

	result, err := c.rpc.GetAccountInfo(ctx, pollPubKey)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return models.PollAccount{}, fmt.Errorf("poll %s: %w", pollPubKey, ErrPollNotFound)
		}
		// reads fail as not-found or connectivity, never as a contract
		// rejection; there is no transaction for the program to refuse
		return models.PollAccount{}, &ConnectivityError{Op: "getAccountInfo", Err: err}
	}
	if result == nil || result.Value == nil {
		return models.PollAccount{}, fmt.Errorf("poll %s: %w", pollPubKey, ErrPollNotFound)
	}

	return decodePollAccount(result.Value.Data.GetBinary())
}

func decodePollAccount(raw []byte) (models.PollAccount, error) {
	if len(raw) <= 8 {
		return models.PollAccount{}, fmt.Errorf("poll account data too short (%d bytes)", len(raw))
	}
	var account models.PollAccount
	// first 8 bytes are the account discriminator
	if err := borsh.Deserialize(&account, raw[8:]); err != nil {
		return models.PollAccount{}, fmt.Errorf("failed to decode poll account: %w", err)
	}
	return account, nil
}

func parsePollID(pollIDStr string) (solana.PublicKey, error) {
	pub, err := solana.PublicKeyFromBase58(pollIDStr)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("poll id %q: %w", pollIDStr, ErrInvalidPollID)
	}
	return pub, nil
}

// submit runs the shared state-changing path: throttle, recent blockhash,
// sign, send. Submissions are never retried here; a duplicate transaction
// is worse than a surfaced error.
func (c *Client) submit(ctx context.Context, op string, signer Signer, instruction solana.Instruction) (solana.Signature, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.throttle.Wait(ctx); err != nil {
		return solana.Signature{}, &ConnectivityError{Op: op, Err: err}
	}

	blockhash, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, &ConnectivityError{Op: op, Err: err}
	}

	authority := signer.Key.PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		blockhash.Value.Blockhash,
		solana.TransactionPayer(authority),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to build transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if authority.Equals(key) {
			return &signer.Key
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := c.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, classify(op, err)
	}
	return sig, nil
}
