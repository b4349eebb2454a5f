package handlers

import (
	"net/http"

	"gotokenbridge/EVMRPC"

	"github.com/go-chi/chi"
)

// balance held on this bridge's own ledger
func (api *API) Balance(w http.ResponseWriter, r *http.Request) {
	b, ok := api.instance(w, r)
	if !ok {
		return
	}

	token, ok := parseAddress(chi.URLParam(r, "token"))
	if !ok {
		responseFail(w, "token", "Invalid token address", http.StatusBadRequest)
		return
	}
	holder, ok := parseAddress(chi.URLParam(r, "holder"))
	if !ok {
		responseFail(w, "holder", "Invalid holder address", http.StatusBadRequest)
		return
	}

	balance, err := b.Balance(token, holder)
	if err != nil {
		responseError(w, err)
		return
	}
	responsePlain(w, []byte(balance.String()), http.StatusOK)
}

// balance of a token deployed on the chain itself, read over RPC
func (api *API) BalanceEVM(w http.ResponseWriter, r *http.Request) {
	chainID, ok := parseUint(chi.URLParam(r, "chain"))
	if !ok {
		responseFail(w, "chain", "Chain id must be a number", http.StatusBadRequest)
		return
	}
	rpcList := api.RPCLists[chainID]
	if len(rpcList) == 0 {
		responseFail(w, "chain", "No RPC endpoints for chain", http.StatusNotFound)
		return
	}

	token, ok := parseAddress(chi.URLParam(r, "token"))
	if !ok {
		responseFail(w, "token", "Invalid token address", http.StatusBadRequest)
		return
	}
	holder, ok := parseAddress(chi.URLParam(r, "holder"))
	if !ok {
		responseFail(w, "holder", "Invalid holder address", http.StatusBadRequest)
		return
	}

	balance, err := EVMRPC.TokenBalance(r.Context(), rpcList, token, holder)
	if err != nil {
		logger.Error("Error getting balance", "chain", chainID, "token", token, "err", err)
		responsePlain(w, []byte("error"), http.StatusInternalServerError)
		return
	}
	responsePlain(w, []byte(balance.String()), http.StatusOK)
}
