package handlers

import (
	"fmt"
	"math/big"
	"net/http"

	"gotokenbridge/bridge"
	"gotokenbridge/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

type SwapRequest struct {
	Caller      string `json:"caller"`
	TokenFrom   string `json:"tokenFrom"`
	TokenTo     string `json:"tokenTo"`
	Amount      string `json:"amount"`
	DestChainID uint64 `json:"destChainId"`
	Signature   string `json:"signature"`
}

// SwapMessage is the text a caller personal-signs to authorize a swap. It
// names the instance's next nonce, so a signed request is good for one swap.
func SwapMessage(chainID types.ChainID, tokenFrom, tokenTo common.Address, amount *big.Int, destChain types.ChainID, nonce uint64) string {
	return fmt.Sprintf(
		"Bridge swap on chain %d: %s of %s to %s on chain %d, nonce %d",
		chainID, amount.String(), tokenFrom.Hex(), tokenTo.Hex(), destChain, nonce,
	)
}

func (api *API) Swap(w http.ResponseWriter, r *http.Request) {
	b, ok := api.instance(w, r)
	if !ok {
		return
	}

	var req SwapRequest
	if !decodeBody(w, r, &req) {
		return
	}

	caller, ok := parseAddress(req.Caller)
	if !ok || caller == (common.Address{}) {
		responseFail(w, "caller", "No ethereum address or invalid address provided", http.StatusBadRequest)
		return
	}
	tokenFrom, ok := parseAddress(req.TokenFrom)
	if !ok {
		responseFail(w, "tokenFrom", "Invalid token address", http.StatusBadRequest)
		return
	}
	tokenTo, ok := parseAddress(req.TokenTo)
	if !ok {
		responseFail(w, "tokenTo", "Invalid token address", http.StatusBadRequest)
		return
	}
	// a parsed zero or negative amount is the bridge's to reject
	amount, ok := math.ParseBig256(req.Amount)
	if !ok || req.Amount == "" {
		responseFail(w, "amount", "Invalid amount", http.StatusBadRequest)
		return
	}

	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		responseFail(w, "signature", "No signature or malformed signature provided", http.StatusBadRequest)
		return
	}

	msg := SwapMessage(b.ChainID(), tokenFrom, tokenTo, amount, req.DestChainID, b.NextNonce())
	signer, err := bridge.RecoverTextSigner(msg, sig)
	if err != nil {
		logger.Debug("Cannot recover swap signer", "sig", req.Signature, "err", err)
		responseFail(w, "signature", "No signature or malformed signature provided", http.StatusBadRequest)
		return
	}
	if signer != caller {
		logger.Debug("Swap signer mismatch", "recovered", signer, "caller", caller)
		responseFail(w, "signature", "Signature does not match the caller", http.StatusBadRequest)
		return
	}

	rec, err := b.Swap(caller, tokenFrom, tokenTo, amount, req.DestChainID)
	if err != nil {
		responseError(w, err)
		return
	}

	responseJSON(w, &APISwapResponse{
		Status: "ok",
		Swap:   toAPISwapRecord(rec),
	}, http.StatusOK)
}
