package models

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

type CreatePollRequest struct {
	Title           string   `json:"title" binding:"required"`
	Options         []string `json:"options" binding:"required"`
	MaxVotesPerUser int      `json:"maxVotesPerUser" binding:"required"`
	Signer          string   `json:"signer"`
}

type CastVoteRequest struct {
	PollID      string `json:"pollId" binding:"required"`
	OptionIndex *int   `json:"optionIndex" binding:"required"`
	Signer      string `json:"signer"`
}

type ClosePollRequest struct {
	PollID string `json:"pollId" binding:"required"`
	Signer string `json:"signer"`
}

type SubmitResponse struct {
	TransactionID string `json:"transactionId"`
	Signer        string `json:"signer"`
	SignerKey     string `json:"signerKey"`
	Committed     bool   `json:"committed"`
	Explorer      string `json:"explorerUrl,omitempty"`
	PollAddress   string `json:"pollAddress,omitempty"`
}

type PollSnapshot struct {
	PollID          string   `json:"pollId"`
	Title           string   `json:"title"`
	Options         []string `json:"options"`
	Votes           []uint64 `json:"votes"`
	MaxVotesPerUser int      `json:"maxVotesPerUser"`
	IsOpen          bool     `json:"isOpen"`
}

type SignupRequest struct {
	Identifier string            `json:"identifier" binding:"required"`
	Secret     string            `json:"secret" binding:"required"`
	Extra      map[string]string `json:"extra"`
}

type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Secret     string `json:"secret" binding:"required"`
}

type SessionRecord struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
}

type SessionToken struct {
	Token  string        `json:"token"`
	Record SessionRecord `json:"record"`
}

// Borsh-encoded instruction arguments. Field order matches the on-chain
// program layout and must not change.

type CreatePollArgs struct {
	PollID          uint64   `borsh:"poll_id"`
	Title           string   `borsh:"title"`
	Options         []string `borsh:"options"`
	MaxVotesPerUser uint8    `borsh:"max_votes_per_user"`
}

type CastVoteArgs struct {
	OptionIndex uint8 `borsh:"option_index"`
}

// PollAccount is the on-chain poll state that follows the 8-byte account
// discriminator.
type PollAccount struct {
	PollID          uint64   `borsh:"poll_id"`
	Title           string   `borsh:"title"`
	Options         []string `borsh:"options"`
	Votes           []uint64 `borsh:"votes"`
	MaxVotesPerUser uint8    `borsh:"max_votes_per_user"`
	IsOpen          bool     `borsh:"is_open"`
}
