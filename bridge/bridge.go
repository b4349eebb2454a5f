package bridge

import (
	"fmt"
	"math/big"
	"sync"

	"gotokenbridge/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
)

// Token is the fungible token collaborator. Burn and Mint are privileged,
// callers pass the bridge address and the token decides.
type Token interface {
	BalanceOf(holder common.Address) *big.Int
	Burn(caller, from common.Address, amount *big.Int) error
	Mint(caller, to common.Address, amount *big.Int) error
}

// TokenSet resolves token addresses on the instance's own chain.
type TokenSet interface {
	Lookup(token common.Address) (Token, error)
}

type Config struct {
	ChainID types.ChainID
	// address the tokens know as their bridge (minter/burner)
	Address common.Address
	Owner   common.Address
	// signer whose signatures authorize redemptions on this instance,
	// i.e. the counterpart's authority
	Authority common.Address
	Tokens    TokenSet
}

// State is a point-in-time copy of an instance, for reporting.
type State struct {
	ChainID        types.ChainID                    `json:"chainId"`
	Address        common.Address                   `json:"address"`
	Owner          common.Address                   `json:"owner"`
	Authority      common.Address                   `json:"authority"`
	Registry       map[types.ChainID]common.Address `json:"registry"`
	NextNonce      uint64                           `json:"nextNonce"`
	ConsumedNonces []uint64                         `json:"consumedNonces"`
}

// Instance is one chain's side of the bridge. Every operation runs under one
// lock: validation, the token call and the commit of nonce/replay state are
// never interleaved with another operation.
type Instance struct {
	chainID   types.ChainID
	address   common.Address
	owner     common.Address
	authority common.Address
	tokens    TokenSet

	mu       sync.Mutex
	registry *TokenRegistry
	nonces   NonceSequencer
	replay   *ReplayGuard
	records  []types.SwapRecord

	feed event.Feed
	log  log.Logger
}

func New(cfg Config) (*Instance, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("bridge instance needs a token set")
	}
	if cfg.Address == (common.Address{}) || cfg.Owner == (common.Address{}) || cfg.Authority == (common.Address{}) {
		return nil, ErrZeroAddress
	}

	return &Instance{
		chainID:   cfg.ChainID,
		address:   cfg.Address,
		owner:     cfg.Owner,
		authority: cfg.Authority,
		tokens:    cfg.Tokens,
		registry:  NewTokenRegistry(),
		replay:    NewReplayGuard(),
		log:       log.New("system", "bridge", "chain", cfg.ChainID),
	}, nil
}

func (b *Instance) ChainID() types.ChainID { return b.chainID }

func (b *Instance) Address() common.Address { return b.address }

func (b *Instance) Owner() common.Address { return b.owner }

func (b *Instance) Authority() common.Address { return b.authority }

// IncludeToken registers token as the one recognized for chainID. Owner only.
func (b *Instance) IncludeToken(caller common.Address, chainID types.ChainID, token common.Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if caller != b.owner {
		return ErrNotOwner
	}
	if err := b.registry.IncludeToken(chainID, token); err != nil {
		return err
	}

	b.log.Info("Included token", "forChain", chainID, "token", token)
	return nil
}

// Swap burns amount of the home token from caller and emits a swap record
// addressed to tokenTo on destChain.
func (b *Instance) Swap(caller, tokenFrom, tokenTo common.Address, amount *big.Int, destChain types.ChainID) (*types.SwapRecord, error) {
	rec, err := b.swap(caller, tokenFrom, tokenTo, amount, destChain)
	if err != nil {
		b.log.Debug("Swap rejected", "caller", caller, "tokenFrom", tokenFrom, "tokenTo", tokenTo, "err", err)
		return nil, err
	}

	b.log.Info("Swap", "tokenTo", rec.TokenTo, "recipient", rec.Recipient, "amount", rec.Amount, "nonce", rec.Nonce, "destChain", rec.DestChain)
	// subscribers are woken up, the ordered log is SwapRecords
	b.feed.Send(copyRecord(*rec))
	return rec, nil
}

func (b *Instance) swap(caller, tokenFrom, tokenTo common.Address, amount *big.Int, destChain types.ChainID) (*types.SwapRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if tokenFrom == (common.Address{}) || tokenTo == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if tokenFrom != b.registry.Resolve(b.chainID) {
		return nil, incorrectAction(tokenFrom)
	}
	// records addressed to this chain would need this chain's own authority to redeem
	if destChain == b.chainID || tokenTo != b.registry.Resolve(destChain) {
		return nil, incorrectAction(tokenTo)
	}
	if amount == nil || amount.Sign() == 0 {
		return nil, ErrZeroAmount
	}
	if amount.Sign() < 0 || amount.Cmp(math.MaxBig256) > 0 {
		return nil, ErrAmountOutOfRange
	}

	token, err := b.tokens.Lookup(tokenFrom)
	if err != nil {
		return nil, err
	}
	// last fallible step, nothing is committed before it succeeds
	if err := token.Burn(b.address, caller, amount); err != nil {
		return nil, err
	}

	rec := types.SwapRecord{
		TokenTo:     tokenTo,
		Recipient:   caller,
		Amount:      new(big.Int).Set(amount),
		Nonce:       b.nonces.Next(),
		SourceChain: b.chainID,
		DestChain:   destChain,
	}
	b.records = append(b.records, rec)

	out := copyRecord(rec)
	return &out, nil
}

// Redeem credits recipient with amount of tokenTo if signature is the
// authority's signature over the record and nonce was not redeemed before.
// A bad signature and a replayed nonce both fail with ErrIncorrectSignature.
func (b *Instance) Redeem(tokenTo, recipient common.Address, amount *big.Int, nonce uint64, signature []byte) error {
	hash, err := MessageHash(tokenTo, recipient, amount, nonce)
	if err != nil {
		b.log.Debug("Redeem rejected, cannot encode record", "nonce", nonce, "err", err)
		return ErrIncorrectSignature
	}

	// authority is immutable, recovery does not need the lock
	if !Verify(hash, signature, b.authority) {
		b.log.Warn("Redeem rejected, signature does not match authority", "nonce", nonce, "recipient", recipient)
		return ErrIncorrectSignature
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.replay.Consumed(nonce) {
		b.log.Warn("Redeem rejected, nonce already redeemed", "nonce", nonce, "recipient", recipient)
		return ErrIncorrectSignature
	}

	token, err := b.tokens.Lookup(tokenTo)
	if err != nil {
		return err
	}
	if err := token.Mint(b.address, recipient, amount); err != nil {
		return err
	}
	// Consumed was false under this same lock
	if !b.replay.Consume(nonce) {
		panic(fmt.Sprintf("bridge: nonce %d consumed twice", nonce))
	}

	b.log.Info("Redeem", "tokenTo", tokenTo, "recipient", recipient, "amount", amount, "nonce", nonce)
	return nil
}

func (b *Instance) NextNonce() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces.Peek()
}

// Redeemed reports whether the record with nonce was already credited here.
func (b *Instance) Redeemed(nonce uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.replay.Consumed(nonce)
}

// Balance reads holder's balance of a token on this chain.
func (b *Instance) Balance(token, holder common.Address) (*big.Int, error) {
	t, err := b.tokens.Lookup(token)
	if err != nil {
		return nil, err
	}
	return t.BalanceOf(holder), nil
}

// SwapRecords returns up to limit emitted records starting at nonce from.
// limit <= 0 means all of them.
func (b *Instance) SwapRecords(from uint64, limit int) []types.SwapRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	// nonces are dense, record n sits at index n
	if from >= uint64(len(b.records)) {
		return nil
	}
	end := uint64(len(b.records))
	if limit > 0 && from+uint64(limit) < end {
		end = from + uint64(limit)
	}

	out := make([]types.SwapRecord, 0, end-from)
	for _, rec := range b.records[from:end] {
		out = append(out, copyRecord(rec))
	}
	return out
}

// SubscribeSwaps delivers every record emitted after subscription. Delivery
// blocks the swapping caller until ch accepts, so keep ch drained.
func (b *Instance) SubscribeSwaps(ch chan<- types.SwapRecord) event.Subscription {
	return b.feed.Subscribe(ch)
}

func (b *Instance) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return State{
		ChainID:        b.chainID,
		Address:        b.address,
		Owner:          b.owner,
		Authority:      b.authority,
		Registry:       b.registry.Entries(),
		NextNonce:      b.nonces.Peek(),
		ConsumedNonces: b.replay.Nonces(),
	}
}

func copyRecord(rec types.SwapRecord) types.SwapRecord {
	rec.Amount = new(big.Int).Set(rec.Amount)
	return rec
}
