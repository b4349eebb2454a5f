package handlers

import (
	"net/http"

	"gotokenbridge/config"
	"gotokenbridge/types"

	"github.com/go-chi/chi"
)

// relay operations by status, e.g. /stats/failed
func (api *API) GetRelayOperations(w http.ResponseWriter, r *http.Request) {
	status := types.RelayStatus(chi.URLParam(r, "status"))
	if _, ok := config.RedisStatusSets[status]; !ok {
		responseFail(w, "status", "Unknown relay status", http.StatusNotFound)
		return
	}

	ops, err := api.Store.FindAllRelayOperationsByStatus(status)
	if err != nil {
		logger.Error("Cannot list relay operations", "status", status, "err", err)
		responseJSON(w, nil, http.StatusInternalServerError)
		return
	}

	responseJSON(w, ops, http.StatusOK)
}

func (api *API) GetSwaps(w http.ResponseWriter, r *http.Request) {
	b, ok := api.instance(w, r)
	if !ok {
		return
	}

	var from uint64
	if s := r.URL.Query().Get("from"); s != "" {
		if from, ok = parseUint(s); !ok {
			responseFail(w, "from", "from must be a nonce", http.StatusBadRequest)
			return
		}
	}
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		l, ok := parseUint(s)
		if !ok || l == 0 || l > 1000 {
			responseFail(w, "limit", "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		limit = int(l)
	}

	records := b.SwapRecords(from, limit)
	swaps := make([]*APISwapRecord, 0, len(records))
	for i := range records {
		swaps = append(swaps, toAPISwapRecord(&records[i]))
	}

	responseJSON(w, &APISwapsResponse{
		Status: "ok",
		Swaps:  swaps,
	}, http.StatusOK)
}
