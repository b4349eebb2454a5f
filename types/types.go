package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// chain ids follow EIP-155 numbering (1 Eth mainnet, 56 BNB, 97 BNB testnet, etc.)
type ChainID = uint64

// SwapRecord is emitted once per successful swap on the source instance.
// Only TokenTo, Recipient, Amount and Nonce are signed; the chain ids are routing metadata
type SwapRecord struct {
	TokenTo     common.Address
	Recipient   common.Address
	Amount      *big.Int
	Nonce       uint64
	SourceChain ChainID
	DestChain   ChainID
}

// RedeemRequest is what a relayer submits to the destination instance
type RedeemRequest struct {
	TokenTo   common.Address
	Recipient common.Address
	Amount    *big.Int
	Nonce     uint64
	Signature hexutil.Bytes
}

type RelayStatus string

const (
	RelayPending  RelayStatus = "pending"  // swap record scanned on source
	RelaySigned   RelayStatus = "signed"   // authority signature obtained
	RelayRedeemed RelayStatus = "redeemed" // destination accepted the redeem
	RelayFailed   RelayStatus = "failed"   // destination rejected or could not be reached
)

var RelayStatuses = []RelayStatus{RelayPending, RelaySigned, RelayRedeemed, RelayFailed}

// Relay operation is a single swap record being carried to its destination,
// stored as JSON with a status
type RelayOperation struct {
	ID          string
	Status      RelayStatus
	SourceChain ChainID
	DestChain   ChainID
	TsFound     int64
	TokenTo     string
	Recipient   string
	Amount      string // token base units, decimal
	Nonce       uint64
	Signature   string // 0x-prefixed, filled once signed
	Message     string // messages that help to track processing/errors
}
