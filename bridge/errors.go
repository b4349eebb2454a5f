package bridge

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Errors surfaced to callers keep the names of the on-chain custom errors,
// relayers and clients match on these strings.
var (
	ErrZeroAddress        = errors.New("ZeroAddress()")
	ErrIncorrectSignature = errors.New("IncorrectSignature()")
	ErrZeroAmount         = errors.New("ZeroAmount()")
	ErrAmountOutOfRange   = errors.New("amount out of uint256 range")
	ErrNotOwner           = errors.New("Ownable: caller is not the owner")
)

// IncorrectActionError names the token address that did not match the registry.
type IncorrectActionError struct {
	Address common.Address
	Allowed bool
}

func (e *IncorrectActionError) Error() string {
	return fmt.Sprintf("IncorrectAction(%q, %t)", e.Address.Hex(), e.Allowed)
}

func incorrectAction(addr common.Address) error {
	return &IncorrectActionError{Address: addr, Allowed: false}
}
