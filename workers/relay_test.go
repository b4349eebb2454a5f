package workers

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strconv"
	"testing"
	"time"

	"gotokenbridge/bridge"
	"gotokenbridge/redis"
	"gotokenbridge/token"
	"gotokenbridge/types"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

const (
	chainETH types.ChainID = 31337
	chainBSC types.ChainID = 97
	// registered on the ETH side but served by nobody
	chainGone types.ChainID = 5
)

var (
	ownerETH = common.HexToAddress("0x00000000000000000000000000000000000e7401")
	ownerBSC = common.HexToAddress("0x00000000000000000000000000000000000b5c01")
	acc      = common.HexToAddress("0x00000000000000000000000000000000000acc01")

	ethTokenAddr  = common.HexToAddress("0x0000000000000000000000000000000000e7c001")
	bscTokenAddr  = common.HexToAddress("0x0000000000000000000000000000000000b5c001")
	goneTokenAddr = common.HexToAddress("0x0000000000000000000000000000000000060e01")
)

type relayEnv struct {
	signerETH *ecdsa.PrivateKey
	bridgeETH *bridge.Instance
	bridgeBSC *bridge.Instance
	bscToken  *token.Ledger
	store     *redis.Store
	server    *miniredis.Miniredis
	router    *Router
}

func newRelayEnv(t *testing.T) *relayEnv {
	m := miniredis.RunT(t)
	port, err := strconv.Atoi(m.Port())
	require.NoError(t, err)
	store := redis.NewStore(m.Host(), port)
	t.Cleanup(func() { store.Close() })

	signerETH, err := crypto.GenerateKey()
	require.NoError(t, err)
	signerBSC, err := crypto.GenerateKey()
	require.NoError(t, err)

	bridgeETHAddr := common.HexToAddress("0x000000000000000000000000000000000b1d6e01")
	bridgeBSCAddr := common.HexToAddress("0x000000000000000000000000000000000b1d6e02")

	ethToken := token.NewLedger(ethTokenAddr, ownerETH, bridgeETHAddr)
	require.NoError(t, ethToken.Mint(ownerETH, acc, big.NewInt(1e9)))
	bscToken := token.NewLedger(bscTokenAddr, ownerBSC, bridgeBSCAddr)

	bridgeETH, err := bridge.New(bridge.Config{
		ChainID:   chainETH,
		Address:   bridgeETHAddr,
		Owner:     ownerETH,
		Authority: crypto.PubkeyToAddress(signerBSC.PublicKey),
		Tokens:    token.NewBook(ethToken),
	})
	require.NoError(t, err)
	bridgeBSC, err := bridge.New(bridge.Config{
		ChainID:   chainBSC,
		Address:   bridgeBSCAddr,
		Owner:     ownerBSC,
		Authority: crypto.PubkeyToAddress(signerETH.PublicKey),
		Tokens:    token.NewBook(bscToken),
	})
	require.NoError(t, err)

	require.NoError(t, bridgeETH.IncludeToken(ownerETH, chainETH, ethTokenAddr))
	require.NoError(t, bridgeETH.IncludeToken(ownerETH, chainBSC, bscTokenAddr))
	require.NoError(t, bridgeETH.IncludeToken(ownerETH, chainGone, goneTokenAddr))
	require.NoError(t, bridgeBSC.IncludeToken(ownerBSC, chainETH, ethTokenAddr))
	require.NoError(t, bridgeBSC.IncludeToken(ownerBSC, chainBSC, bscTokenAddr))

	router := NewRouter()
	router.Listen(bridgeETH)
	router.Listen(bridgeBSC)

	return &relayEnv{
		signerETH: signerETH,
		bridgeETH: bridgeETH,
		bridgeBSC: bridgeBSC,
		bscToken:  bscToken,
		store:     store,
		server:    m,
		router:    router,
	}
}

func (env *relayEnv) relayer(t *testing.T, poll time.Duration) *Relayer {
	r, err := NewRelayer(RelayerConfig{
		Source:       env.bridgeETH,
		Router:       env.router,
		Signer:       env.signerETH,
		Store:        env.store,
		PollInterval: poll,
		BatchSize:    2,
	})
	require.NoError(t, err)
	return r
}

func TestRelaySwapToDestination(t *testing.T) {
	env := newRelayEnv(t)
	r := env.relayer(t, time.Hour)

	for i := 0; i < 3; i++ {
		_, err := env.bridgeETH.Swap(acc, ethTokenAddr, bscTokenAddr, big.NewInt(1e8), chainBSC)
		require.NoError(t, err)
	}

	require.NoError(t, r.Scan())
	require.Equal(t, int64(3e8), env.bscToken.BalanceOf(acc).Int64())

	scanned, err := env.store.GetScannedNonce(chainETH)
	require.NoError(t, err)
	require.Equal(t, uint64(3), scanned)

	redeemed, err := env.store.FindAllRelayOperationsByStatus(types.RelayRedeemed)
	require.NoError(t, err)
	require.Len(t, redeemed, 3)

	op, err := env.store.FindRelayOperation(chainETH, 1)
	require.NoError(t, err)
	require.Equal(t, types.RelayRedeemed, op.Status)
	require.Equal(t, "100000000", op.Amount)
	require.Equal(t, acc.Hex(), op.Recipient)
	require.NotEmpty(t, op.Signature)

	// the stored signature is the one the destination accepted
	sig, err := hexutil.Decode(op.Signature)
	require.NoError(t, err)
	hash, err := bridge.MessageHash(bscTokenAddr, acc, big.NewInt(1e8), 1)
	require.NoError(t, err)
	require.True(t, bridge.Verify(hash, sig, crypto.PubkeyToAddress(env.signerETH.PublicKey)))

	// nothing new, nothing credited twice
	require.NoError(t, r.Scan())
	require.Equal(t, int64(3e8), env.bscToken.BalanceOf(acc).Int64())
}

func TestRelayCheckpointSurvivesRestart(t *testing.T) {
	env := newRelayEnv(t)

	_, err := env.bridgeETH.Swap(acc, ethTokenAddr, bscTokenAddr, big.NewInt(1e8), chainBSC)
	require.NoError(t, err)
	require.NoError(t, env.relayer(t, time.Hour).Scan())

	// a fresh relayer over the same store starts at the checkpoint
	_, err = env.bridgeETH.Swap(acc, ethTokenAddr, bscTokenAddr, big.NewInt(2e8), chainBSC)
	require.NoError(t, err)
	require.NoError(t, env.relayer(t, time.Hour).Scan())

	require.Equal(t, int64(3e8), env.bscToken.BalanceOf(acc).Int64())
	require.True(t, env.bridgeBSC.Redeemed(0))
	require.True(t, env.bridgeBSC.Redeemed(1))
}

func TestRelayRepairsOrphanedNonceIndex(t *testing.T) {
	env := newRelayEnv(t)

	// a crash between claiming the nonce and writing the record
	require.NoError(t, env.server.Set("relaynonce:31337:0", "orphan-id"))

	_, err := env.bridgeETH.Swap(acc, ethTokenAddr, bscTokenAddr, big.NewInt(1e9), chainBSC)
	require.NoError(t, err)
	require.NoError(t, env.relayer(t, time.Hour).Scan())

	require.True(t, env.bridgeBSC.Redeemed(0))
	require.Equal(t, int64(1e9), env.bscToken.BalanceOf(acc).Int64())

	op, err := env.store.FindRelayOperation(chainETH, 0)
	require.NoError(t, err)
	require.Equal(t, types.RelayRedeemed, op.Status)
	require.NotEqual(t, "orphan-id", op.ID)
}

func TestRelayUnknownDestinationFails(t *testing.T) {
	env := newRelayEnv(t)

	_, err := env.bridgeETH.Swap(acc, ethTokenAddr, goneTokenAddr, big.NewInt(1e8), chainGone)
	require.NoError(t, err)
	require.NoError(t, env.relayer(t, time.Hour).Scan())

	failed, err := env.store.FindAllRelayOperationsByStatus(types.RelayFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, uint64(0), failed[0].Nonce)
	require.Contains(t, failed[0].Message, "unknown destination chain 5")

	// failed operations are not retried
	require.NoError(t, env.relayer(t, time.Hour).Scan())
	failed, err = env.store.FindAllRelayOperationsByStatus(types.RelayFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
}

func TestRelayRejectedRedeemFails(t *testing.T) {
	env := newRelayEnv(t)

	_, err := env.bridgeETH.Swap(acc, ethTokenAddr, bscTokenAddr, big.NewInt(1e8), chainBSC)
	require.NoError(t, err)

	// signed by a key the destination does not trust
	stranger, err := crypto.GenerateKey()
	require.NoError(t, err)
	r, err := NewRelayer(RelayerConfig{
		Source: env.bridgeETH,
		Router: env.router,
		Signer: stranger,
		Store:  env.store,
	})
	require.NoError(t, err)
	require.NoError(t, r.Scan())

	op, err := env.store.FindRelayOperation(chainETH, 0)
	require.NoError(t, err)
	require.Equal(t, types.RelayFailed, op.Status)
	require.Contains(t, op.Message, "IncorrectSignature()")
	require.Zero(t, env.bscToken.BalanceOf(acc).Sign())
	require.False(t, env.bridgeBSC.Redeemed(0))
}

func TestRelayResumesSignedOperation(t *testing.T) {
	env := newRelayEnv(t)

	rec, err := env.bridgeETH.Swap(acc, ethTokenAddr, bscTokenAddr, big.NewInt(1e9), chainBSC)
	require.NoError(t, err)

	// a previous run redeemed, then died before recording it
	hash, err := bridge.MessageHash(rec.TokenTo, rec.Recipient, rec.Amount, rec.Nonce)
	require.NoError(t, err)
	sig, err := bridge.SignMessage(hash, env.signerETH)
	require.NoError(t, err)
	require.NoError(t, env.bridgeBSC.Redeem(rec.TokenTo, rec.Recipient, rec.Amount, rec.Nonce, sig))
	require.NoError(t, env.store.CreateRelayOperation(&types.RelayOperation{
		Status:      types.RelaySigned,
		SourceChain: chainETH,
		DestChain:   chainBSC,
		TokenTo:     rec.TokenTo.Hex(),
		Recipient:   rec.Recipient.Hex(),
		Amount:      rec.Amount.String(),
		Nonce:       rec.Nonce,
		Signature:   hexutil.Encode(sig),
	}))

	require.NoError(t, env.relayer(t, time.Hour).Scan())

	op, err := env.store.FindRelayOperation(chainETH, 0)
	require.NoError(t, err)
	require.Equal(t, types.RelayRedeemed, op.Status)
	require.Equal(t, "already redeemed on destination", op.Message)
	require.Equal(t, int64(1e9), env.bscToken.BalanceOf(acc).Int64())
}

func TestRelayerRunWakesOnSwap(t *testing.T) {
	env := newRelayEnv(t)
	r := env.relayer(t, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	_, err := env.bridgeETH.Swap(acc, ethTokenAddr, bscTokenAddr, big.NewInt(1e9), chainBSC)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return env.bridgeBSC.Redeemed(0)
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, int64(1e9), env.bscToken.BalanceOf(acc).Int64())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relayer did not stop")
	}
}

func TestNewRelayerValidation(t *testing.T) {
	env := newRelayEnv(t)

	_, err := NewRelayer(RelayerConfig{Source: env.bridgeETH, Router: env.router, Store: env.store})
	require.Error(t, err)

	r, err := NewRelayer(RelayerConfig{Source: env.bridgeETH, Router: env.router, Signer: env.signerETH, Store: env.store})
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, r.pollInterval)
	require.Equal(t, 100, r.batchSize)

	dest, ok := env.router.Destination(chainBSC)
	require.True(t, ok)
	require.Equal(t, chainBSC, dest.ChainID())
	_, ok = env.router.Destination(chainGone)
	require.False(t, ok)
}
