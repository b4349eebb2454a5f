package token

import (
	"math/big"
	"sync"

	"gotokenbridge/bridge"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var (
	ErrNotMinter           = errors.New("caller is not the bridge")
	ErrInsufficientBalance = errors.New("transfer amount exceeds balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrUnknownToken        = errors.New("unknown token")
)

// Ledger is a bridgeable fungible token: the owner can mint, the bridge it
// was created for can mint and burn.
type Ledger struct {
	address common.Address
	owner   common.Address
	bridge  common.Address

	mu       sync.Mutex
	balances map[common.Address]*big.Int
	supply   *big.Int
}

func NewLedger(address, owner, bridge common.Address) *Ledger {
	return &Ledger{
		address:  address,
		owner:    owner,
		bridge:   bridge,
		balances: make(map[common.Address]*big.Int),
		supply:   new(big.Int),
	}
}

func (l *Ledger) Address() common.Address {
	return l.address
}

func (l *Ledger) BalanceOf(holder common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.balances[holder]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (l *Ledger) TotalSupply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return new(big.Int).Set(l.supply)
}

func (l *Ledger) Mint(caller, to common.Address, amount *big.Int) error {
	if caller != l.owner && caller != l.bridge {
		return ErrNotMinter
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[to]
	if !ok {
		bal = new(big.Int)
		l.balances[to] = bal
	}
	bal.Add(bal, amount)
	l.supply.Add(l.supply, amount)
	return nil
}

func (l *Ledger) Burn(caller, from common.Address, amount *big.Int) error {
	if caller != l.bridge {
		return ErrNotMinter
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	l.supply.Sub(l.supply, amount)
	return nil
}

// Book holds the tokens deployed on one chain.
type Book struct {
	mu     sync.RWMutex
	tokens map[common.Address]*Ledger
}

func NewBook(ledgers ...*Ledger) *Book {
	b := &Book{tokens: make(map[common.Address]*Ledger)}
	for _, l := range ledgers {
		b.tokens[l.address] = l
	}
	return b
}

func (b *Book) Add(l *Ledger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[l.address] = l
}

func (b *Book) Ledger(address common.Address) (*Ledger, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.tokens[address]
	return l, ok
}

func (b *Book) Lookup(address common.Address) (bridge.Token, error) {
	l, ok := b.Ledger(address)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownToken, "%s", address.Hex())
	}
	return l, nil
}
