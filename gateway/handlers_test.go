package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"polling-gateway/gateway"
	"polling-gateway/identity"
	"polling-gateway/journal"
	"polling-gateway/ledger"
	"polling-gateway/models"
	"polling-gateway/ratelimit"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) CreatePoll(ctx context.Context, signerName, title string, options []string, maxVotesPerUser int) (ledger.SubmitResult, error) {
	args := m.Called(ctx, signerName, title, options, maxVotesPerUser)
	return args.Get(0).(ledger.SubmitResult), args.Error(1)
}

func (m *MockLedger) CastVote(ctx context.Context, signerName, pollID string, optionIndex int) (ledger.SubmitResult, error) {
	args := m.Called(ctx, signerName, pollID, optionIndex)
	return args.Get(0).(ledger.SubmitResult), args.Error(1)
}

func (m *MockLedger) ClosePoll(ctx context.Context, signerName, pollID string) (ledger.SubmitResult, error) {
	args := m.Called(ctx, signerName, pollID)
	return args.Get(0).(ledger.SubmitResult), args.Error(1)
}

func (m *MockLedger) GetPollDetails(ctx context.Context, pollID string) (models.PollSnapshot, error) {
	args := m.Called(ctx, pollID)
	return args.Get(0).(models.PollSnapshot), args.Error(1)
}

func (m *MockLedger) GetVotes(ctx context.Context, pollID string, optionIndex int) (uint64, error) {
	args := m.Called(ctx, pollID, optionIndex)
	return args.Get(0).(uint64), args.Error(1)
}

type MockIdentity struct {
	mock.Mock
}

func (m *MockIdentity) Signup(ctx context.Context, identifier, secret string, extra map[string]string) (models.SessionRecord, error) {
	args := m.Called(ctx, identifier, secret, extra)
	return args.Get(0).(models.SessionRecord), args.Error(1)
}

func (m *MockIdentity) Login(ctx context.Context, identifier, secret string) (models.SessionToken, error) {
	args := m.Called(ctx, identifier, secret)
	return args.Get(0).(models.SessionToken), args.Error(1)
}

func (m *MockIdentity) Logout(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func newRouter(ledgerClient gateway.LedgerClient, identityClient gateway.IdentityClient, limiter *ratelimit.Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := &gateway.Handlers{
		Ledger:   ledgerClient,
		Identity: identityClient,
		Cluster:  "devnet",
		Logger:   zerolog.Nop(),
	}
	if limiter == nil {
		limiter = ratelimit.New(1000, time.Minute)
	}
	return gateway.NewRouter(h, gateway.RouterOptions{Limiter: limiter, Logger: zerolog.Nop()})
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func sampleResult() ledger.SubmitResult {
	key := solana.MustPublicKeyFromBase58("GW1r76tkZDNpdKf7BD7ap1EtPvnQb592apWuaKWCyckd")
	return ledger.SubmitResult{
		Signature:   solana.Signature{7},
		Signer:      "ops",
		SignerKey:   key,
		PollAddress: key,
	}
}

func TestCreatePoll_Success(t *testing.T) {
	ledgerMock := &MockLedger{}
	ledgerMock.On("CreatePoll", mock.Anything, "", "Best language?", []string{"Go", "Rust"}, 1).
		Return(sampleResult(), nil)

	r := newRouter(ledgerMock, nil, nil)
	w := doJSON(r, http.MethodPost, "/createPoll", gin.H{
		"title":           "Best language?",
		"options":         []string{"Go", "Rust"},
		"maxVotesPerUser": 1,
	})

	require.Equal(t, http.StatusOK, w.Code)
	resp := parseResponse(t, w)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.NotEmpty(t, data["transactionId"])
	assert.Equal(t, "ops", data["signer"])
	assert.Equal(t, false, data["committed"])
	assert.Contains(t, data["explorerUrl"], "cluster=devnet")
	ledgerMock.AssertExpectations(t)
}

func TestCreatePoll_ValidationFailsFast(t *testing.T) {
	tests := []struct {
		name string
		body gin.H
	}{
		{
			name: "missing title",
			body: gin.H{"options": []string{"A", "B"}, "maxVotesPerUser": 1},
		},
		{
			name: "single option",
			body: gin.H{"title": "q", "options": []string{"A"}, "maxVotesPerUser": 1},
		},
		{
			name: "blank option",
			body: gin.H{"title": "q", "options": []string{"A", "  "}, "maxVotesPerUser": 1},
		},
		{
			name: "zero max votes",
			body: gin.H{"title": "q", "options": []string{"A", "B"}, "maxVotesPerUser": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledgerMock := &MockLedger{}
			r := newRouter(ledgerMock, nil, nil)

			w := doJSON(r, http.MethodPost, "/createPoll", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "validation_error", parseResponse(t, w).Code)
			ledgerMock.AssertNotCalled(t, "CreatePoll")
		})
	}
}

func TestCreatePoll_NoSigningAccount(t *testing.T) {
	ledgerMock := &MockLedger{}
	ledgerMock.On("CreatePoll", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(ledger.SubmitResult{}, ledger.ErrNoSigningAccount)

	r := newRouter(ledgerMock, nil, nil)
	w := doJSON(r, http.MethodPost, "/createPoll", gin.H{
		"title":           "q",
		"options":         []string{"A", "B"},
		"maxVotesPerUser": 1,
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "no_signing_account", parseResponse(t, w).Code)
}

type recordingJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
	ctxErrs []error
}

func (j *recordingJournal) Record(ctx context.Context, e journal.Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	j.ctxErrs = append(j.ctxErrs, ctx.Err())
}

func TestCreatePoll_JournalsDespiteClientDisconnect(t *testing.T) {
	ledgerMock := &MockLedger{}
	ledgerMock.On("CreatePoll", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(sampleResult(), nil)

	jrnl := &recordingJournal{}
	gin.SetMode(gin.TestMode)
	h := &gateway.Handlers{
		Ledger:  ledgerMock,
		Journal: jrnl,
		Cluster: "devnet",
		Logger:  zerolog.Nop(),
	}
	r := gateway.NewRouter(h, gateway.RouterOptions{Limiter: ratelimit.New(1000, time.Minute), Logger: zerolog.Nop()})

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(gin.H{
		"title":           "q",
		"options":         []string{"A", "B"},
		"maxVotesPerUser": 1,
	})
	req := httptest.NewRequest(http.MethodPost, "/createPoll", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.1:1234"

	// the caller is already gone by the time the node accepts
	ctx, cancel := context.WithCancel(req.Context())
	cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, jrnl.entries, 1)
	assert.Equal(t, "createPoll", jrnl.entries[0].Operation)
	assert.Equal(t, "ops", jrnl.entries[0].Signer)
	assert.NoError(t, jrnl.ctxErrs[0], "audit write must not inherit the request's cancellation")
}

func TestCastVote_OptionIndexZeroIsValid(t *testing.T) {
	ledgerMock := &MockLedger{}
	ledgerMock.On("CastVote", mock.Anything, "", "poll-1", 0).
		Return(sampleResult(), nil)

	r := newRouter(ledgerMock, nil, nil)
	w := doJSON(r, http.MethodPost, "/castVote", gin.H{"pollId": "poll-1", "optionIndex": 0})

	assert.Equal(t, http.StatusOK, w.Code)
	ledgerMock.AssertExpectations(t)
}

func TestCastVote_ContractRejected(t *testing.T) {
	ledgerMock := &MockLedger{}
	ledgerMock.On("CastVote", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(ledger.SubmitResult{}, &ledger.ContractRejectedError{Code: -32002, Message: "custom program error: 0x1771"})

	r := newRouter(ledgerMock, nil, nil)
	w := doJSON(r, http.MethodPost, "/castVote", gin.H{"pollId": "poll-1", "optionIndex": 1})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, "contract_rejected", resp.Code)
	// raw program error text must not leak
	assert.NotContains(t, w.Body.String(), "0x1771")
}

func TestCastVote_ConnectivityIsOpaque(t *testing.T) {
	ledgerMock := &MockLedger{}
	ledgerMock.On("CastVote", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(ledger.SubmitResult{}, &ledger.ConnectivityError{Op: "castVote", Err: errors.New("dial tcp 10.1.2.3:8899: connection refused")})

	r := newRouter(ledgerMock, nil, nil)
	w := doJSON(r, http.MethodPost, "/castVote", gin.H{"pollId": "poll-1", "optionIndex": 1})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "ledger_unreachable", parseResponse(t, w).Code)
	assert.NotContains(t, w.Body.String(), "dial tcp")
}

func TestClosePoll_Success(t *testing.T) {
	ledgerMock := &MockLedger{}
	ledgerMock.On("ClosePoll", mock.Anything, "ops", "poll-1").
		Return(sampleResult(), nil)

	r := newRouter(ledgerMock, nil, nil)
	w := doJSON(r, http.MethodPost, "/closePoll", gin.H{"pollId": "poll-1", "signer": "ops"})

	assert.Equal(t, http.StatusOK, w.Code)
	ledgerMock.AssertExpectations(t)
}

func TestPollDetails_Success(t *testing.T) {
	ledgerMock := &MockLedger{}
	ledgerMock.On("GetPollDetails", mock.Anything, "poll-1").
		Return(models.PollSnapshot{
			PollID:          "poll-1",
			Title:           "Best language?",
			Options:         []string{"Go", "Rust"},
			Votes:           []uint64{3, 1},
			MaxVotesPerUser: 1,
			IsOpen:          true,
		}, nil)

	r := newRouter(ledgerMock, nil, nil)
	w := doJSON(r, http.MethodGet, "/pollDetails/poll-1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := parseResponse(t, w).Data.(map[string]interface{})
	assert.Equal(t, "Best language?", data["title"])
	assert.Equal(t, true, data["isOpen"])
}

func TestPollDetails_NotFound(t *testing.T) {
	ledgerMock := &MockLedger{}
	ledgerMock.On("GetPollDetails", mock.Anything, "missing").
		Return(models.PollSnapshot{}, ledger.ErrPollNotFound)

	r := newRouter(ledgerMock, nil, nil)
	w := doJSON(r, http.MethodGet, "/pollDetails/missing", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", parseResponse(t, w).Code)
}

func TestVotes_Success(t *testing.T) {
	ledgerMock := &MockLedger{}
	ledgerMock.On("GetVotes", mock.Anything, "poll-1", 0).Return(uint64(5), nil)

	r := newRouter(ledgerMock, nil, nil)
	w := doJSON(r, http.MethodGet, "/votes/poll-1/0", nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := parseResponse(t, w).Data.(map[string]interface{})
	assert.Equal(t, float64(5), data["votes"])
}

func TestVotes_NonIntegerOptionIndex(t *testing.T) {
	ledgerMock := &MockLedger{}
	r := newRouter(ledgerMock, nil, nil)

	w := doJSON(r, http.MethodGet, "/votes/poll-1/abc", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	ledgerMock.AssertNotCalled(t, "GetVotes")
}

func TestSignup_Success(t *testing.T) {
	identityMock := &MockIdentity{}
	identityMock.On("Signup", mock.Anything, "alice@example.com", "s3cret", map[string]string{"phone": "555-0100"}).
		Return(models.SessionRecord{ID: "rec123", Identifier: "alice@example.com"}, nil)

	r := newRouter(&MockLedger{}, identityMock, nil)
	w := doJSON(r, http.MethodPost, "/auth/signup", gin.H{
		"identifier": "alice@example.com",
		"secret":     "s3cret",
		"extra":      map[string]string{"phone": "555-0100"},
	})

	require.Equal(t, http.StatusOK, w.Code)
	identityMock.AssertExpectations(t)
}

func TestLogin_WrongCredentialsIs401(t *testing.T) {
	identityMock := &MockIdentity{}
	identityMock.On("Login", mock.Anything, "alice@example.com", "wrong").
		Return(models.SessionToken{}, fmt.Errorf("login %q: %w", "alice@example.com", identity.ErrInvalidCredentials))

	r := newRouter(&MockLedger{}, identityMock, nil)
	w := doJSON(r, http.MethodPost, "/auth/login", gin.H{"identifier": "alice@example.com", "secret": "wrong"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_credentials", parseResponse(t, w).Code)
}

func TestSignup_DuplicateIs409(t *testing.T) {
	identityMock := &MockIdentity{}
	identityMock.On("Signup", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.SessionRecord{}, identity.ErrDuplicateIdentity)

	r := newRouter(&MockLedger{}, identityMock, nil)
	w := doJSON(r, http.MethodPost, "/auth/signup", gin.H{"identifier": "alice@example.com", "secret": "s3cret"})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_identity", parseResponse(t, w).Code)
}

func TestLogin_BackendDownIs503(t *testing.T) {
	identityMock := &MockIdentity{}
	identityMock.On("Login", mock.Anything, mock.Anything, mock.Anything).
		Return(models.SessionToken{}, &identity.BackendError{Op: "login", Err: errors.New("connection refused")})

	r := newRouter(&MockLedger{}, identityMock, nil)
	w := doJSON(r, http.MethodPost, "/auth/login", gin.H{"identifier": "a@b.c", "secret": "pw"})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestLogout_Success(t *testing.T) {
	identityMock := &MockIdentity{}
	identityMock.On("Logout", mock.Anything, "tok-1").Return(nil)

	r := newRouter(&MockLedger{}, identityMock, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	data := parseResponse(t, w).Data.(map[string]interface{})
	assert.Equal(t, "Logged out successfully", data["message"])
	identityMock.AssertExpectations(t)
}

func TestLogout_WithoutTokenStillAcknowledges(t *testing.T) {
	r := newRouter(&MockLedger{}, identity.NewClient("http://identity.invalid", time.Second), nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	data := parseResponse(t, w).Data.(map[string]interface{})
	assert.Equal(t, "Logged out successfully", data["message"])
}

func TestAuthRoutesAbsentWithoutIdentityAdapter(t *testing.T) {
	r := newRouter(&MockLedger{}, nil, nil)

	w := doJSON(r, http.MethodPost, "/auth/login", gin.H{"identifier": "a", "secret": "b"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogin_RateLimited(t *testing.T) {
	identityMock := &MockIdentity{}
	identityMock.On("Login", mock.Anything, mock.Anything, mock.Anything).
		Return(models.SessionToken{Token: "jwt"}, nil)

	r := newRouter(&MockLedger{}, identityMock, ratelimit.New(10, 1*time.Second))

	for i := 0; i < 10; i++ {
		w := doJSON(r, http.MethodPost, "/auth/login", gin.H{"identifier": "a@b.c", "secret": "pw"})
		assert.Equal(t, http.StatusOK, w.Code, "call %d should be admitted", i+1)
	}

	w := doJSON(r, http.MethodPost, "/auth/login", gin.H{"identifier": "a@b.c", "secret": "pw"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	identityMock.AssertNumberOfCalls(t, "Login", 10)
}

func TestHealthz(t *testing.T) {
	r := newRouter(&MockLedger{}, nil, nil)
	w := doJSON(r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
