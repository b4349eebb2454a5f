package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"gotokenbridge/bridge"
	"gotokenbridge/token"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi"
	"github.com/pkg/errors"
)

func responseJSON(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func responsePlain(w http.ResponseWriter, data []byte, code int) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	w.Write(data)
}

func responseFail(w http.ResponseWriter, field, message string, code int) {
	responseJSON(w, &APIResponse{
		Status:  "error",
		Field:   field,
		Message: message,
	}, code)
}

// protocol errors keep their names in the message, clients match on them
func responseError(w http.ResponseWriter, err error) {
	responseFail(w, errorField(err), err.Error(), errorStatus(err))
}

func errorStatus(err error) int {
	var actionErr *bridge.IncorrectActionError
	switch {
	case errors.Is(err, bridge.ErrNotOwner):
		return http.StatusForbidden
	case errors.As(err, &actionErr),
		errors.Is(err, bridge.ErrZeroAddress),
		errors.Is(err, bridge.ErrZeroAmount),
		errors.Is(err, bridge.ErrAmountOutOfRange),
		errors.Is(err, bridge.ErrIncorrectSignature),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrUnknownToken):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorField(err error) string {
	var actionErr *bridge.IncorrectActionError
	switch {
	case errors.As(err, &actionErr), errors.Is(err, bridge.ErrZeroAddress), errors.Is(err, token.ErrUnknownToken):
		return "token"
	case errors.Is(err, bridge.ErrIncorrectSignature):
		return "signature"
	case errors.Is(err, bridge.ErrZeroAmount), errors.Is(err, bridge.ErrAmountOutOfRange),
		errors.Is(err, token.ErrInsufficientBalance), errors.Is(err, token.ErrInvalidAmount):
		return "amount"
	default:
		return ""
	}
}

// parseAddress accepts the zero address, the bridge reports it with its own error
func parseAddress(s string) (common.Address, bool) {
	if err := ethav.Validate(s); err != nil {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseUint(s string) (uint64, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	return n, err == nil
}

func (api *API) instance(w http.ResponseWriter, r *http.Request) (*bridge.Instance, bool) {
	chainID, ok := parseUint(chi.URLParam(r, "chain"))
	if !ok {
		responseFail(w, "chain", "Chain id must be a number", http.StatusBadRequest)
		return nil, false
	}
	b, ok := api.Bridges[chainID]
	if !ok {
		responseFail(w, "chain", "Chain not served by this bridge", http.StatusNotFound)
		return nil, false
	}
	return b, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(v); err != nil {
		logger.Debug("Cannot unmarshal request body", "path", r.URL.Path, "err", err)
		responseFail(w, "", "Cannot unmarshal input JSON", http.StatusBadRequest)
		return false
	}
	return true
}
