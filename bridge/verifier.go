package bridge

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// PackMessage lays out a swap record the way abi.encodePacked(address,address,uint256,uint256)
// does: every field has a fixed width so no two records share an encoding.
func PackMessage(tokenTo, recipient common.Address, amount *big.Int, nonce uint64) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 || amount.Cmp(math.MaxBig256) > 0 {
		return nil, ErrAmountOutOfRange
	}

	msg := make([]byte, 0, 2*common.AddressLength+2*common.HashLength)
	msg = append(msg, tokenTo.Bytes()...)
	msg = append(msg, recipient.Bytes()...)
	// U256Bytes truncates its argument in place
	msg = append(msg, math.U256Bytes(new(big.Int).Set(amount))...)
	msg = append(msg, math.U256Bytes(new(big.Int).SetUint64(nonce))...)
	return msg, nil
}

func MessageHash(tokenTo, recipient common.Address, amount *big.Int, nonce uint64) (common.Hash, error) {
	msg, err := PackMessage(tokenTo, recipient, amount, nonce)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(msg), nil
}

// authorities sign with personal_sign, so the record hash is wrapped in the EIP-191 prefix
func prefixHash(data []byte) common.Hash {
	msg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(data), data)
	return crypto.Keccak256Hash([]byte(msg))
}

func publicKeyBytesToAddress(publicKey []byte) common.Address {
	if len(publicKey) < 1 {
		return common.Address{}
	}
	hash := crypto.Keccak256(publicKey[1:])
	return common.BytesToAddress(hash[12:])
}

// RecoverSigner returns the address that personal-signed hash.
func RecoverSigner(hash common.Hash, sig []byte) (common.Address, error) {
	return recoverPrefixed(hash.Bytes(), sig)
}

// RecoverTextSigner returns the address that personal-signed a plain text message.
func RecoverTextSigner(msg string, sig []byte) (common.Address, error) {
	return recoverPrefixed([]byte(msg), sig)
}

func recoverPrefixed(data []byte, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errors.Errorf("invalid signature length %d", len(sig))
	}

	sigBytes := make([]byte, crypto.SignatureLength)
	copy(sigBytes, sig)

	v := sigBytes[crypto.RecoveryIDOffset]
	if v == 27 || v == 28 {
		v -= 27
	}
	if v != 0 && v != 1 {
		return common.Address{}, errors.Errorf("wrong signature recovery id %d", sigBytes[crypto.RecoveryIDOffset])
	}
	sigBytes[crypto.RecoveryIDOffset] = v

	r := new(big.Int).SetBytes(sigBytes[:32])
	s := new(big.Int).SetBytes(sigBytes[32:64])
	// reject malleable high-s twins of a valid signature
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return common.Address{}, errors.New("invalid signature values")
	}

	sigPublicKey, err := crypto.Ecrecover(prefixHash(data).Bytes(), sigBytes)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "cannot recover public key")
	}
	return publicKeyBytesToAddress(sigPublicKey), nil
}

// Verify reports whether sig is expected's signature over hash. Malformed
// signatures verify as false.
func Verify(hash common.Hash, sig []byte, expected common.Address) bool {
	if expected == (common.Address{}) {
		return false
	}
	signer, err := RecoverSigner(hash, sig)
	if err != nil {
		return false
	}
	return signer == expected
}

// SignMessage produces the signature an authority hands to relayers, in the
// same [R || S || V] form with V 27/28 that wallets return from personal_sign.
func SignMessage(hash common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	return signPrefixed(hash.Bytes(), key)
}

// SignText is personal_sign over a plain text message.
func SignText(msg string, key *ecdsa.PrivateKey) ([]byte, error) {
	return signPrefixed([]byte(msg), key)
}

func signPrefixed(data []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(prefixHash(data).Bytes(), key)
	if err != nil {
		return nil, errors.Wrap(err, "signing message")
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
