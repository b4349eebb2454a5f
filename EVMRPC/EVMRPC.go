package EVMRPC

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
)

// only what the bridge reads from deployed tokens
const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var ERC20ABI abi.ABI

var ErrNoEndpoints = errors.New("no RPC endpoints configured")

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(err)
	}
	ERC20ABI = parsed
}

// WithClient runs f against each endpoint in order until one succeeds
func WithClient[T any](rpcList []string, f func(client *ethclient.Client) (T, error)) (res T, err error) {
	if len(rpcList) == 0 {
		return res, ErrNoEndpoints
	}

	var client *ethclient.Client
	for _, url := range rpcList {
		client, err = ethclient.Dial(url)
		if err != nil {
			log.Warn("Error connecting to RPC", "url", url, "err", err)
			continue
		}

		res, err = f(client)
		client.Close()
		if err == nil {
			return
		}
		log.Warn("RPC call failed", "url", url, "err", err)
	}
	return
}

func callUint256(ctx context.Context, backend bind.ContractCaller, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	contract := bind.NewBoundContract(token, ERC20ABI, backend, nil, nil)

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, errors.Wrapf(err, "%s on %s", method, token.Hex())
	}
	if len(out) != 1 {
		return nil, errors.Errorf("%s on %s returned %d values", method, token.Hex(), len(out))
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("%s on %s returned %T", method, token.Hex(), out[0])
	}
	return value, nil
}

// TokenBalance reads holder's ERC-20 balance of a deployed token
func TokenBalance(ctx context.Context, rpcList []string, token, holder common.Address) (*big.Int, error) {
	return WithClient(rpcList, func(client *ethclient.Client) (*big.Int, error) {
		return callUint256(ctx, client, token, "balanceOf", holder)
	})
}

func TokenTotalSupply(ctx context.Context, rpcList []string, token common.Address) (*big.Int, error) {
	return WithClient(rpcList, func(client *ethclient.Client) (*big.Int, error) {
		return callUint256(ctx, client, token, "totalSupply")
	})
}
