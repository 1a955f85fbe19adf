package service

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// RecoverAddress recovers the address that signed message under the
// Ethereum personal-message scheme (EIP-191). Pure function: no store
// access, no network. All parse and recovery failures wrap
// ErrMalformedSignature.
func RecoverAddress(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d, want %d", ErrMalformedSignature, len(sig), crypto.SignatureLength)
	}

	// Wallets emit V as 27/28 per the personal_sign convention;
	// crypto.SigToPub wants 0/1.
	v := sig[crypto.RecoveryIDOffset]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return common.Address{}, fmt.Errorf("%w: invalid recovery id %d", ErrMalformedSignature, sig[crypto.RecoveryIDOffset])
	}
	norm := make([]byte, crypto.SignatureLength)
	copy(norm, sig)
	norm[crypto.RecoveryIDOffset] = v

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), norm)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
