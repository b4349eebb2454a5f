package workers

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"time"

	"gotokenbridge/bridge"
	"gotokenbridge/redis"
	"gotokenbridge/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
)

// Store persists relay progress, implemented by redis.Store
type Store interface {
	CreateRelayOperation(op *types.RelayOperation) error
	ChangeRelayOperationStatus(op *types.RelayOperation, prevStatus types.RelayStatus) error
	FindRelayOperation(sourceChain types.ChainID, nonce uint64) (*types.RelayOperation, error)
	FindAllRelayOperationsByStatus(status types.RelayStatus) ([]*types.RelayOperation, error)
	GetScannedNonce(chainID types.ChainID) (uint64, error)
	SetScannedNonce(chainID types.ChainID, nonce uint64) error
}

// Source is the instance whose swap records get relayed
type Source interface {
	ChainID() types.ChainID
	SwapRecords(from uint64, limit int) []types.SwapRecord
	SubscribeSwaps(ch chan<- types.SwapRecord) event.Subscription
}

// Redeemer is a destination instance
type Redeemer interface {
	ChainID() types.ChainID
	Redeem(tokenTo, recipient common.Address, amount *big.Int, nonce uint64, signature []byte) error
	Redeemed(nonce uint64) bool
}

// Router maps destination chain ids to their instances
type Router struct {
	lock     sync.RWMutex
	registry map[types.ChainID]Redeemer
}

func NewRouter() *Router {
	return &Router{registry: make(map[types.ChainID]Redeemer)}
}

func (r *Router) Listen(dest Redeemer) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.registry[dest.ChainID()] = dest
}

func (r *Router) Destination(chainID types.ChainID) (Redeemer, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	dest, ok := r.registry[chainID]
	return dest, ok
}

type RelayerConfig struct {
	Source Source
	Router *Router
	// the source chain's authority key
	Signer       *ecdsa.PrivateKey
	Store        Store
	PollInterval time.Duration
	BatchSize    int
}

// Relayer carries swap records of one source instance to their destinations.
// Each record is persisted before it is signed and submitted, so a restart
// resumes where it stopped and never submits a nonce from scratch twice.
type Relayer struct {
	source       Source
	router       *Router
	signer       *ecdsa.PrivateKey
	store        Store
	pollInterval time.Duration
	batchSize    int
	log          log.Logger
}

func NewRelayer(cfg RelayerConfig) (*Relayer, error) {
	if cfg.Source == nil || cfg.Router == nil || cfg.Signer == nil || cfg.Store == nil {
		return nil, errors.New("relayer needs a source, router, signer and store")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	return &Relayer{
		source:       cfg.Source,
		router:       cfg.Router,
		signer:       cfg.Signer,
		store:        cfg.Store,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		log:          log.New("system", "relayer", "chain", cfg.Source.ChainID()),
	}, nil
}

// Run scans on every poll tick and whenever the source emits a record, until ctx is done.
func (r *Relayer) Run(ctx context.Context) error {
	swaps := make(chan types.SwapRecord, 64)
	sub := r.source.SubscribeSwaps(swaps)
	defer sub.Unsubscribe()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.log.Info("Relayer started", "poll", r.pollInterval)
	for {
		if err := r.Scan(); err != nil {
			r.log.Error("Relay scan failed", "err", err)
		}

		select {
		case <-ctx.Done():
			r.log.Info("Relayer stopped")
			return nil
		case err := <-sub.Err():
			return errors.Wrap(err, "swap subscription")
		case <-swaps:
			// the scan reads the ordered log, the event only wakes us up
			for len(swaps) > 0 {
				<-swaps
			}
		case <-ticker.C:
		}
	}
}

// Scan relays every record past the checkpoint. It stops at the first record
// that cannot be persisted, leaving the checkpoint on it.
func (r *Relayer) Scan() error {
	chainID := r.source.ChainID()

	from, err := r.store.GetScannedNonce(chainID)
	if err != nil {
		return errors.Wrap(err, "get scanned nonce")
	}

	for {
		records := r.source.SwapRecords(from, r.batchSize)
		if len(records) == 0 {
			return nil
		}

		for _, rec := range records {
			if err := r.relay(rec); err != nil {
				return errors.Wrapf(err, "relay nonce %d", rec.Nonce)
			}
			from = rec.Nonce + 1
			if err := r.store.SetScannedNonce(chainID, from); err != nil {
				return errors.Wrap(err, "set scanned nonce")
			}
		}
	}
}

func (r *Relayer) relay(rec types.SwapRecord) error {
	op, err := r.store.FindRelayOperation(rec.SourceChain, rec.Nonce)
	if err != nil {
		return err
	}

	if op == nil {
		op = &types.RelayOperation{
			Status:      types.RelayPending,
			SourceChain: rec.SourceChain,
			DestChain:   rec.DestChain,
			TsFound:     time.Now().Unix(),
			TokenTo:     rec.TokenTo.Hex(),
			Recipient:   rec.Recipient.Hex(),
			Amount:      rec.Amount.String(),
			Nonce:       rec.Nonce,
		}
		if err := r.store.CreateRelayOperation(op); err != nil {
			if errors.Is(err, redis.ErrDuplicateOperation) {
				// another relayer got there first
				return nil
			}
			return err
		}
		r.log.Info("Found new swap record", "nonce", rec.Nonce, "destChain", rec.DestChain, "recipient", rec.Recipient, "amount", rec.Amount)
	}

	if op.Status == types.RelayPending {
		if err := r.sign(op, rec); err != nil {
			return err
		}
	}
	if op.Status == types.RelaySigned {
		return r.submit(op, rec)
	}

	// redeemed or failed, nothing left to do
	return nil
}

func (r *Relayer) sign(op *types.RelayOperation, rec types.SwapRecord) error {
	hash, err := bridge.MessageHash(rec.TokenTo, rec.Recipient, rec.Amount, rec.Nonce)
	if err != nil {
		return err
	}
	sig, err := bridge.SignMessage(hash, r.signer)
	if err != nil {
		return err
	}

	op.Signature = hexutil.Encode(sig)
	op.Status = types.RelaySigned
	return r.store.ChangeRelayOperationStatus(op, types.RelayPending)
}

func (r *Relayer) submit(op *types.RelayOperation, rec types.SwapRecord) error {
	dest, ok := r.router.Destination(op.DestChain)
	if !ok {
		return r.finish(op, types.RelayFailed, fmt.Sprintf("unknown destination chain %d", op.DestChain))
	}

	// a previous run may have crashed between redeem and the status update
	if dest.Redeemed(op.Nonce) {
		return r.finish(op, types.RelayRedeemed, "already redeemed on destination")
	}

	sig, err := hexutil.Decode(op.Signature)
	if err != nil {
		return r.finish(op, types.RelayFailed, fmt.Sprintf("stored signature unreadable: %s", err))
	}

	if err := dest.Redeem(rec.TokenTo, rec.Recipient, rec.Amount, rec.Nonce, sig); err != nil {
		r.log.Error("Redeem failed", "nonce", op.Nonce, "destChain", op.DestChain, "err", err)
		return r.finish(op, types.RelayFailed, fmt.Sprintf("redeem failed: %s", err))
	}

	r.log.Info("Relayed swap record", "nonce", op.Nonce, "destChain", op.DestChain, "recipient", op.Recipient, "amount", op.Amount)
	return r.finish(op, types.RelayRedeemed, "")
}

func (r *Relayer) finish(op *types.RelayOperation, status types.RelayStatus, msg string) error {
	prevStatus := op.Status
	op.Status = status
	if msg != "" {
		if op.Message == "" {
			op.Message = msg
		} else {
			op.Message += "; " + msg
		}
	}
	return r.store.ChangeRelayOperationStatus(op, prevStatus)
}
