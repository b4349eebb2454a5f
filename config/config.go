package config

import (
	"crypto/ecdsa"
	"math/big"
	"strings"
	"time"

	"gotokenbridge/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

type Configuration struct {
	// Server config
	Server struct {
		UseSSL    bool   `yaml:"ssl" envconfig:"SSL"`
		Port      int    `yaml:"port" envconfig:"PORT"`
		RedisPort int    `yaml:"redis_port" envconfig:"REDIS_PORT"`
		RedisHost string `yaml:"redis_host" envconfig:"REDIS_HOST"`
		LogDir    string `yaml:"log_dir" envconfig:"LOG_DIR"`
		LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL"`
		// bearer token guarding the owner-only endpoints, empty disables them
		AdminToken string `yaml:"admin_token" envconfig:"ADMIN_TOKEN"`
	} `yaml:"server"`
	Relayer struct {
		PollInterval time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL"`
		BatchSize    int           `yaml:"batch_size" envconfig:"BATCH_SIZE"`
	} `yaml:"relayer"`
	Chains []ChainConfig `yaml:"chains" ignored:"true"`
	// important private stuff, chain id -> hex key, better kept in env
	SignerKeys map[uint64]string `yaml:"signer_keys" envconfig:"SIGNER_KEYS"`
}

// ChainConfig describes one bridge instance and the tokens deployed next to it
type ChainConfig struct {
	Name          string `yaml:"name"`
	ChainID       uint64 `yaml:"chain_id"`
	BridgeAddress string `yaml:"bridge_address"`
	OwnerAddress  string `yaml:"owner_address"`
	// address whose signatures this instance accepts, the counterpart's signer
	Authority string `yaml:"authority"`
	// key signing the swap records this instance emits, see SignerKeys
	SignerKey string            `yaml:"signer_key"`
	RPCList   []string          `yaml:"rpc"`
	Registry  map[uint64]string `yaml:"registry"`
	Tokens    []TokenConfig     `yaml:"tokens"`
}

type TokenConfig struct {
	Address string `yaml:"address"`
	Owner   string `yaml:"owner"`
	// genesis allocations, holder -> amount in base units
	Balances map[string]string `yaml:"balances"`
}

var Config Configuration

const (
	DefaultConfigPath   = "config.yml"
	DefaultPort         = 8080
	DefaultPollInterval = 5 * time.Second
	DefaultBatchSize    = 100
)

var RedisStatusSets = map[types.RelayStatus]string{
	types.RelayPending:  "relayops:pending",  // swap record scanned on the source instance
	types.RelaySigned:   "relayops:signed",   // signature obtained, redeem not yet accepted
	types.RelayRedeemed: "relayops:redeemed", // destination credited the recipient
	types.RelayFailed:   "relayops:failed",   // destination rejected the redeem
}

func (c *Configuration) Chain(chainID uint64) (*ChainConfig, bool) {
	for i := range c.Chains {
		if c.Chains[i].ChainID == chainID {
			return &c.Chains[i], true
		}
	}
	return nil, false
}

func (c *Configuration) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Relayer.PollInterval <= 0 {
		c.Relayer.PollInterval = DefaultPollInterval
	}
	if c.Relayer.BatchSize <= 0 {
		c.Relayer.BatchSize = DefaultBatchSize
	}
	for i := range c.Chains {
		if key, ok := c.SignerKeys[c.Chains[i].ChainID]; ok && key != "" {
			c.Chains[i].SignerKey = key
		}
	}
}

func (c *Configuration) validate() error {
	// an instance trusts one authority and keys replay by nonce alone, so it
	// can only have one counterpart
	if len(c.Chains) != 2 {
		return errors.Errorf("exactly two chains are required, got %d", len(c.Chains))
	}

	seen := make(map[uint64]bool)
	for _, chain := range c.Chains {
		if chain.ChainID == 0 {
			return errors.Errorf("required field chain_id empty for chain %q", chain.Name)
		}
		if seen[chain.ChainID] {
			return errors.Errorf("duplicate chain_id %d", chain.ChainID)
		}
		seen[chain.ChainID] = true

		if chain.Name == "" {
			return errors.Errorf("required field name empty for chain %d", chain.ChainID)
		}
		for field, addr := range map[string]string{
			"bridge_address": chain.BridgeAddress,
			"owner_address":  chain.OwnerAddress,
			"authority":      chain.Authority,
		} {
			if !isAddress(addr) {
				return errors.Errorf("invalid %s %q for chain %d", field, addr, chain.ChainID)
			}
		}
		if chain.SignerKey != "" {
			if _, err := chain.SignerPrivateKey(); err != nil {
				return errors.Wrapf(err, "chain %d", chain.ChainID)
			}
		}
		for forChain, addr := range chain.Registry {
			if !isAddress(addr) {
				return errors.Errorf("invalid registry token %q for chain %d on chain %d", addr, forChain, chain.ChainID)
			}
		}
		for _, token := range chain.Tokens {
			if !isAddress(token.Address) || !isAddress(token.Owner) {
				return errors.Errorf("invalid token %q (owner %q) on chain %d", token.Address, token.Owner, chain.ChainID)
			}
			for holder, amount := range token.Balances {
				if !isAddress(holder) {
					return errors.Errorf("invalid holder %q of token %s", holder, token.Address)
				}
				if _, ok := ParseAmount(amount); !ok {
					return errors.Errorf("invalid amount %q for holder %s of token %s", amount, holder, token.Address)
				}
			}
		}
	}
	return c.validatePair()
}

// validatePair checks that each configured signer is the authority of the other side,
// otherwise every record it signs is rejected on redeem
func (c *Configuration) validatePair() error {
	for i, chain := range c.Chains {
		if chain.SignerKey == "" {
			continue
		}
		key, err := chain.SignerPrivateKey()
		if err != nil {
			return errors.Wrapf(err, "chain %d", chain.ChainID)
		}
		counterpart := c.Chains[1-i]
		signer := crypto.PubkeyToAddress(key.PublicKey)
		if signer != common.HexToAddress(counterpart.Authority) {
			return errors.Errorf("signer %s of chain %d is not the authority %s of chain %d",
				signer.Hex(), chain.ChainID, counterpart.Authority, counterpart.ChainID)
		}
	}
	return nil
}

// SignerPrivateKey parses the hex key, with or without 0x prefix.
func (c *ChainConfig) SignerPrivateKey() (*ecdsa.PrivateKey, error) {
	if c.SignerKey == "" {
		return nil, errors.Errorf("no signer key for chain %d", c.ChainID)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(c.SignerKey, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid signer key")
	}
	return key, nil
}

func isAddress(s string) bool {
	return common.IsHexAddress(s) && common.HexToAddress(s) != (common.Address{})
}

// ParseAmount accepts a positive decimal or 0x-hex amount that fits in 256 bits
func ParseAmount(s string) (*big.Int, bool) {
	amount, ok := math.ParseBig256(s)
	if !ok || amount.Sign() <= 0 {
		return nil, false
	}
	return amount, true
}
