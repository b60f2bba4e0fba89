// Package gateway is the HTTP-facing dispatcher: it validates request
// shape, runs admission, invokes the ledger or identity adapter and maps
// every outcome to a response. It holds no poll state of its own.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"polling-gateway/journal"
	"polling-gateway/ledger"
	"polling-gateway/models"
)

// LedgerClient is the slice of ledger.Client the handlers use.
type LedgerClient interface {
	CreatePoll(ctx context.Context, signerName, title string, options []string, maxVotesPerUser int) (ledger.SubmitResult, error)
	CastVote(ctx context.Context, signerName, pollID string, optionIndex int) (ledger.SubmitResult, error)
	ClosePoll(ctx context.Context, signerName, pollID string) (ledger.SubmitResult, error)
	GetPollDetails(ctx context.Context, pollID string) (models.PollSnapshot, error)
	GetVotes(ctx context.Context, pollID string, optionIndex int) (uint64, error)
}

// IdentityClient is the slice of identity.Client the handlers use. It may
// be absent; the auth routes are then not mounted at all.
type IdentityClient interface {
	Signup(ctx context.Context, identifier, secret string, extra map[string]string) (models.SessionRecord, error)
	Login(ctx context.Context, identifier, secret string) (models.SessionToken, error)
	Logout(ctx context.Context, token string) error
}

// SubmissionJournal records accepted submissions; *journal.Journal
// implements it.
type SubmissionJournal interface {
	Record(ctx context.Context, e journal.Entry)
}

type Handlers struct {
	Ledger   LedgerClient
	Identity IdentityClient
	Journal  SubmissionJournal
	Cluster  string
	Logger   zerolog.Logger
}

func (h *Handlers) explorerURL(signature string) string {
	return fmt.Sprintf("https://explorer.solana.com/tx/%s?cluster=%s", signature, h.Cluster)
}

func (h *Handlers) submitResponse(res ledger.SubmitResult) models.SubmitResponse {
	return models.SubmitResponse{
		TransactionID: res.Signature.String(),
		Signer:        res.Signer,
		SignerKey:     res.SignerKey.String(),
		Committed:     false,
		Explorer:      h.explorerURL(res.Signature.String()),
		PollAddress:   res.PollAddress.String(),
	}
}

func (h *Handlers) journalSubmission(ctx context.Context, op string, res ledger.SubmitResult) {
	if h.Journal == nil {
		return
	}
	// the client may disconnect right after the node accepts the
	// transaction; the audit row is written regardless
	h.Journal.Record(context.WithoutCancel(ctx), journal.Entry{
		Operation:   op,
		Signature:   res.Signature.String(),
		Signer:      res.Signer,
		PollAddress: res.PollAddress.String(),
	})
}

func (h *Handlers) CreatePoll(c *gin.Context) {
	var req models.CreatePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "title, options and maxVotesPerUser are required")
		return
	}
	if len(req.Options) < 2 {
		respondValidation(c, "poll must have at least 2 options")
		return
	}
	for _, opt := range req.Options {
		if strings.TrimSpace(opt) == "" {
			respondValidation(c, "options must not be empty")
			return
		}
	}
	if req.MaxVotesPerUser < 1 || req.MaxVotesPerUser > 255 {
		respondValidation(c, "maxVotesPerUser must be between 1 and 255")
		return
	}

	res, err := h.Ledger.CreatePoll(c.Request.Context(), req.Signer, req.Title, req.Options, req.MaxVotesPerUser)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	h.journalSubmission(c.Request.Context(), "createPoll", res)

	c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: h.submitResponse(res)})
}

func (h *Handlers) CastVote(c *gin.Context) {
	var req models.CastVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "pollId and optionIndex are required")
		return
	}
	if *req.OptionIndex < 0 || *req.OptionIndex > 255 {
		respondValidation(c, "optionIndex must be between 0 and 255")
		return
	}

	res, err := h.Ledger.CastVote(c.Request.Context(), req.Signer, req.PollID, *req.OptionIndex)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	h.journalSubmission(c.Request.Context(), "castVote", res)

	c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: h.submitResponse(res)})
}

func (h *Handlers) ClosePoll(c *gin.Context) {
	var req models.ClosePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "pollId is required")
		return
	}

	res, err := h.Ledger.ClosePoll(c.Request.Context(), req.Signer, req.PollID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	h.journalSubmission(c.Request.Context(), "closePoll", res)

	c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: h.submitResponse(res)})
}

func (h *Handlers) PollDetails(c *gin.Context) {
	snapshot, err := h.Ledger.GetPollDetails(c.Request.Context(), c.Param("pollId"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: snapshot})
}

func (h *Handlers) Votes(c *gin.Context) {
	optionIndex, err := strconv.Atoi(c.Param("optionIndex"))
	if err != nil {
		respondValidation(c, "optionIndex must be an integer")
		return
	}

	votes, err := h.Ledger.GetVotes(c.Request.Context(), c.Param("pollId"), optionIndex)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    gin.H{"votes": votes},
	})
}

func (h *Handlers) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "identifier and secret are required")
		return
	}

	record, err := h.Identity.Signup(c.Request.Context(), req.Identifier, req.Secret, req.Extra)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: record})
}

func (h *Handlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "identifier and secret are required")
		return
	}

	token, err := h.Identity.Login(c.Request.Context(), req.Identifier, req.Secret)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: token})
}

func (h *Handlers) Logout(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))

	if err := h.Identity.Logout(c.Request.Context(), token); err != nil {
		respondError(c, h.Logger, err)
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    gin.H{"message": "Logged out successfully"},
	})
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return strings.TrimSpace(header)
}
