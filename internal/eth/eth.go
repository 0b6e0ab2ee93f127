// Package eth verifies EIP-191 personal-sign signatures by recovering the
// signer address. Recovery is CPU-bound, so the Verifier runs it behind a
// bounded worker semaphore instead of on the caller's goroutine budget.
package eth

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"runtime"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/layer-3/sigil/core"
)

// NormalizeAddress parses and checksums a wallet address. Comparison of two
// normalized addresses is case-insensitive by construction.
func NormalizeAddress(addr string) (common.Address, error) {
	if !common.IsHexAddress(addr) {
		return common.Address{}, core.ErrInvalidAddress
	}
	return common.HexToAddress(addr), nil
}

// RecoverPersonalSigner recovers the address that produced an EIP-191
// personal-sign signature over message. The signature is the usual 65-byte
// r||s||v form; both v in {27,28} (wallet convention) and {0,1} are accepted.
func RecoverPersonalSigner(message []byte, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, core.ErrInvalidSignature)
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("invalid recovery id: %w", core.ErrInvalidSignature)
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", core.ErrInvalidSignature)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// SignPersonal produces an EIP-191 personal-sign signature with the wallet
// v-value convention (27/28). Used by tests and tooling, never by the server.
func SignPersonal(message []byte, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// Verifier checks signatures against a claimed address on a bounded pool of
// worker slots.
type Verifier struct {
	slots chan struct{}
}

// NewVerifier creates a Verifier with the given concurrency. Zero or
// negative means GOMAXPROCS.
func NewVerifier(workers int) *Verifier {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Verifier{slots: make(chan struct{}, workers)}
}

// Verify recovers the signer of an EIP-191 signature over message and
// compares it to the claimed address. sigHex is the 0x-prefixed signature.
// It fails closed: any decode or recovery error is core.ErrInvalidSignature.
func (v *Verifier) Verify(ctx context.Context, message []byte, sigHex string, claimed common.Address) error {
	select {
	case v.slots <- struct{}{}:
		defer func() { <-v.slots }()
	case <-ctx.Done():
		return ctx.Err()
	}

	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return fmt.Errorf("decode signature: %w", core.ErrInvalidSignature)
	}

	recovered, err := RecoverPersonalSigner(message, sig)
	if err != nil {
		return err
	}

	if recovered != claimed {
		return core.ErrInvalidSignature
	}
	return nil
}
