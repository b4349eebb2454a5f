package handlers

import (
	"gotokenbridge/bridge"
	"gotokenbridge/types"

	"github.com/ethereum/go-ethereum/log"
)

var logger = log.New("system", "api")

// OperationFinder is the read side of the relay store
type OperationFinder interface {
	FindAllRelayOperationsByStatus(status types.RelayStatus) ([]*types.RelayOperation, error)
}

// API serves the bridge instances running in this process
type API struct {
	Bridges    map[types.ChainID]*bridge.Instance
	Store      OperationFinder
	RPCLists   map[types.ChainID][]string
	AdminToken string
}

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

type APIStateResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type APISwapRecord struct {
	TokenTo     string `json:"tokenTo"`
	Recipient   string `json:"recipient"`
	Amount      string `json:"amount"`
	Nonce       uint64 `json:"nonce"`
	SourceChain uint64 `json:"sourceChainId"`
	DestChain   uint64 `json:"destChainId"`
}

type APISwapResponse struct {
	Status string         `json:"status"`
	Swap   *APISwapRecord `json:"swap"`
}

type APISwapsResponse struct {
	Status string           `json:"status"`
	Swaps  []*APISwapRecord `json:"swaps"`
}

type APIBridgeStateResponse struct {
	Status string       `json:"status"`
	State  bridge.State `json:"state"`
}

func toAPISwapRecord(rec *types.SwapRecord) *APISwapRecord {
	return &APISwapRecord{
		TokenTo:     rec.TokenTo.Hex(),
		Recipient:   rec.Recipient.Hex(),
		Amount:      rec.Amount.String(),
		Nonce:       rec.Nonce,
		SourceChain: rec.SourceChain,
		DestChain:   rec.DestChain,
	}
}
