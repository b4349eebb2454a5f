package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"gotokenbridge/bridge"
)

type IncludeTokenRequest struct {
	ChainID uint64 `json:"chainId"`
	Token   string `json:"token"`
}

func (api *API) authorized(r *http.Request) bool {
	if api.AdminToken == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(api.AdminToken)) == 1
}

// IncludeToken registers a token on behalf of the instance owner, admin token required
func (api *API) IncludeToken(w http.ResponseWriter, r *http.Request) {
	b, ok := api.instance(w, r)
	if !ok {
		return
	}
	if !api.authorized(r) {
		responseError(w, bridge.ErrNotOwner)
		return
	}

	var req IncludeTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	token, ok := parseAddress(req.Token)
	if !ok {
		responseFail(w, "token", "Invalid token address", http.StatusBadRequest)
		return
	}

	if err := b.IncludeToken(b.Owner(), req.ChainID, token); err != nil {
		responseError(w, err)
		return
	}

	responseJSON(w, &APIResponse{Status: "ok"}, http.StatusOK)
}
