package handlers

import (
	"net/http"
)

// prev. bridge implementation compatibility
func State(w http.ResponseWriter, r *http.Request) {
	responseJSON(w, &APIStateResponse{
		Status: "ok",
	}, http.StatusOK)
}

func (api *API) BridgeState(w http.ResponseWriter, r *http.Request) {
	b, ok := api.instance(w, r)
	if !ok {
		return
	}

	responseJSON(w, &APIBridgeStateResponse{
		Status: "ok",
		State:  b.State(),
	}, http.StatusOK)
}
