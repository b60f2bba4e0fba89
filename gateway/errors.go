package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"polling-gateway/identity"
	"polling-gateway/ledger"
	"polling-gateway/models"
)

// respondError is the single place downstream errors become HTTP responses.
// Nothing crosses this boundary unmapped, and 5xx bodies stay opaque: the
// real error goes to the log, the client gets a stable code.
func respondError(c *gin.Context, logger zerolog.Logger, err error) {
	var (
		contractErr   *ledger.ContractRejectedError
		connectErr    *ledger.ConnectivityError
		validationErr *identity.ValidationError
		backendErr    *identity.BackendError
	)

	switch {
	case errors.Is(err, ledger.ErrInvalidPollID),
		errors.Is(err, ledger.ErrOptionOutOfRange):
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   err.Error(),
			Code:    "validation_error",
		})
	case errors.Is(err, ledger.ErrPollNotFound):
		c.JSON(http.StatusNotFound, models.APIResponse{
			Success: false,
			Error:   "poll not found",
			Code:    "not_found",
		})
	case errors.Is(err, ledger.ErrNoSigningAccount):
		logger.Error().Err(err).Msg("no signing account for submission")
		c.JSON(http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Error:   "no signing account available",
			Code:    "no_signing_account",
		})
	case errors.As(err, &contractErr):
		c.JSON(http.StatusUnprocessableEntity, models.APIResponse{
			Success: false,
			Error:   "operation rejected by contract",
			Code:    "contract_rejected",
		})
	case errors.As(err, &connectErr):
		logger.Error().Err(err).Msg("ledger unreachable")
		c.JSON(http.StatusServiceUnavailable, models.APIResponse{
			Success: false,
			Error:   "ledger temporarily unavailable",
			Code:    "ledger_unreachable",
		})
	case errors.Is(err, identity.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, models.APIResponse{
			Success: false,
			Error:   "Invalid credentials",
			Code:    "invalid_credentials",
		})
	case errors.Is(err, identity.ErrDuplicateIdentity):
		c.JSON(http.StatusConflict, models.APIResponse{
			Success: false,
			Error:   "identity already registered",
			Code:    "duplicate_identity",
		})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   validationErr.Message,
			Code:    "validation_error",
		})
	case errors.As(err, &backendErr):
		logger.Error().Err(err).Msg("identity backend unavailable")
		c.JSON(http.StatusServiceUnavailable, models.APIResponse{
			Success: false,
			Error:   "identity backend temporarily unavailable",
			Code:    "backend_unavailable",
		})
	default:
		logger.Error().Err(err).Msg("unclassified downstream error")
		c.JSON(http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Error:   "internal error",
			Code:    "internal_error",
		})
	}
}

func respondValidation(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.APIResponse{
		Success: false,
		Error:   msg,
		Code:    "validation_error",
	})
}
