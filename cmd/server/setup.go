package main

import (
	"gotokenbridge/bridge"
	"gotokenbridge/config"
	"gotokenbridge/token"
	"gotokenbridge/types"
	"gotokenbridge/workers"
	"gotokenbridge/workers/handlers"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
)

// buildInstances creates one bridge instance per configured chain, with its
// token ledgers, genesis balances and registry entries in place.
func buildInstances(cfg *config.Configuration) (map[types.ChainID]*bridge.Instance, error) {
	instances := make(map[types.ChainID]*bridge.Instance, len(cfg.Chains))

	for _, chain := range cfg.Chains {
		bridgeAddress := common.HexToAddress(chain.BridgeAddress)
		owner := common.HexToAddress(chain.OwnerAddress)

		book := token.NewBook()
		for _, tc := range chain.Tokens {
			tokenOwner := common.HexToAddress(tc.Owner)
			ledger := token.NewLedger(common.HexToAddress(tc.Address), tokenOwner, bridgeAddress)
			for holder, amountStr := range tc.Balances {
				amount, _ := config.ParseAmount(amountStr)
				if err := ledger.Mint(tokenOwner, common.HexToAddress(holder), amount); err != nil {
					return nil, errors.Wrapf(err, "genesis balance of %s on chain %d", holder, chain.ChainID)
				}
			}
			book.Add(ledger)
		}

		b, err := bridge.New(bridge.Config{
			ChainID:   chain.ChainID,
			Address:   bridgeAddress,
			Owner:     owner,
			Authority: common.HexToAddress(chain.Authority),
			Tokens:    book,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "chain %d", chain.ChainID)
		}

		for forChain, tokenAddress := range chain.Registry {
			if err := b.IncludeToken(owner, forChain, common.HexToAddress(tokenAddress)); err != nil {
				return nil, errors.Wrapf(err, "registry of chain %d", chain.ChainID)
			}
		}

		log.Info("Bridge instance ready", "chain", chain.Name, "chainId", chain.ChainID, "address", bridgeAddress, "tokens", len(chain.Tokens))
		instances[chain.ChainID] = b
	}

	return instances, nil
}

// buildRelayers starts a relayer for every chain that holds a signer key. The
// key has to belong to the authority the destination instances trust.
func buildRelayers(cfg *config.Configuration, instances map[types.ChainID]*bridge.Instance, store workers.Store) ([]*workers.Relayer, error) {
	router := workers.NewRouter()
	for _, b := range instances {
		router.Listen(b)
	}

	var relayers []*workers.Relayer
	for _, chain := range cfg.Chains {
		if chain.SignerKey == "" {
			log.Warn("No signer key, swaps from this chain are not relayed", "chainId", chain.ChainID)
			continue
		}
		key, err := chain.SignerPrivateKey()
		if err != nil {
			return nil, err
		}

		relayer, err := workers.NewRelayer(workers.RelayerConfig{
			Source:       instances[chain.ChainID],
			Router:       router,
			Signer:       key,
			Store:        store,
			PollInterval: cfg.Relayer.PollInterval,
			BatchSize:    cfg.Relayer.BatchSize,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "relayer for chain %d", chain.ChainID)
		}
		relayers = append(relayers, relayer)
	}
	return relayers, nil
}

func newAPI(cfg *config.Configuration, instances map[types.ChainID]*bridge.Instance, store handlers.OperationFinder) *handlers.API {
	rpcLists := make(map[types.ChainID][]string, len(cfg.Chains))
	for _, chain := range cfg.Chains {
		if len(chain.RPCList) > 0 {
			rpcLists[chain.ChainID] = chain.RPCList
		}
	}

	return &handlers.API{
		Bridges:    instances,
		Store:      store,
		RPCLists:   rpcLists,
		AdminToken: cfg.Server.AdminToken,
	}
}
