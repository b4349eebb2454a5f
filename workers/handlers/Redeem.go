package handlers

import (
	"net/http"

	"gotokenbridge/bridge"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

type RedeemRequest struct {
	TokenTo   string `json:"tokenTo"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

// Redeem is open to anyone holding an authority signature, usually a relayer.
func (api *API) Redeem(w http.ResponseWriter, r *http.Request) {
	b, ok := api.instance(w, r)
	if !ok {
		return
	}

	var req RedeemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tokenTo, ok := parseAddress(req.TokenTo)
	if !ok {
		responseFail(w, "tokenTo", "Invalid token address", http.StatusBadRequest)
		return
	}
	recipient, ok := parseAddress(req.Recipient)
	if !ok {
		responseFail(w, "recipient", "No ethereum address or invalid address provided", http.StatusBadRequest)
		return
	}
	amount, ok := math.ParseBig256(req.Amount)
	if !ok {
		responseFail(w, "amount", "Invalid amount", http.StatusBadRequest)
		return
	}
	// a malformed signature is answered like any other bad signature
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		responseError(w, bridge.ErrIncorrectSignature)
		return
	}

	if err := b.Redeem(tokenTo, recipient, amount, req.Nonce, sig); err != nil {
		responseError(w, err)
		return
	}

	responseJSON(w, &APIResponse{Status: "ok"}, http.StatusOK)
}
