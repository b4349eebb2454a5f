package bridge

import (
	"gotokenbridge/types"

	"github.com/ethereum/go-ethereum/common"
)

// TokenRegistry maps a chain id to the token this instance recognizes for it.
// It is not synchronized, the owning Instance serializes access.
type TokenRegistry struct {
	tokens map[types.ChainID]common.Address
}

func NewTokenRegistry() *TokenRegistry {
	return &TokenRegistry{tokens: make(map[types.ChainID]common.Address)}
}

// IncludeToken sets or overwrites the token recognized for chainID.
func (r *TokenRegistry) IncludeToken(chainID types.ChainID, token common.Address) error {
	if token == (common.Address{}) {
		return ErrZeroAddress
	}
	r.tokens[chainID] = token
	return nil
}

// Resolve returns the zero address for chains without a registered token.
func (r *TokenRegistry) Resolve(chainID types.ChainID) common.Address {
	return r.tokens[chainID]
}

func (r *TokenRegistry) Entries() map[types.ChainID]common.Address {
	entries := make(map[types.ChainID]common.Address, len(r.tokens))
	for chainID, token := range r.tokens {
		entries[chainID] = token
	}
	return entries
}
