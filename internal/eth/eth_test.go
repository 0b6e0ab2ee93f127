package eth

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/sigil/core"
)

func TestRecoverPersonalSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	message := []byte("sigil test message")
	sigHex, err := SignPersonal(message, key)
	require.NoError(t, err)

	sig, err := hexutil.Decode(sigHex)
	require.NoError(t, err)

	recovered, err := RecoverPersonalSigner(message, sig)
	require.NoError(t, err)
	assert.Equal(t, addr, recovered)
}

func TestRecoverPersonalSigner_ZeroBasedRecoveryID(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	// Sign through the helper and strip the +27 to exercise the 0/1 branch.
	message := []byte("v as 0/1")
	sigHex, err := SignPersonal(message, key)
	require.NoError(t, err)
	raw, err := hexutil.Decode(sigHex)
	require.NoError(t, err)
	raw[crypto.RecoveryIDOffset] -= 27

	recovered, err := RecoverPersonalSigner(message, raw)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), recovered)
}

func TestVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	message := []byte("challenge message bytes")
	sigHex, err := SignPersonal(message, key)
	require.NoError(t, err)

	v := NewVerifier(2)
	ctx := context.Background()

	require.NoError(t, v.Verify(ctx, message, sigHex, addr))

	t.Run("wrong message", func(t *testing.T) {
		err := v.Verify(ctx, []byte("different message"), sigHex, addr)
		assert.ErrorIs(t, err, core.ErrInvalidSignature)
	})

	t.Run("wrong address", func(t *testing.T) {
		other, err := crypto.GenerateKey()
		require.NoError(t, err)
		verr := v.Verify(ctx, message, sigHex, crypto.PubkeyToAddress(other.PublicKey))
		assert.ErrorIs(t, verr, core.ErrInvalidSignature)
	})

	t.Run("malformed hex", func(t *testing.T) {
		err := v.Verify(ctx, message, "not-hex", addr)
		assert.ErrorIs(t, err, core.ErrInvalidSignature)
	})

	t.Run("truncated signature", func(t *testing.T) {
		err := v.Verify(ctx, message, sigHex[:len(sigHex)-4], addr)
		assert.ErrorIs(t, err, core.ErrInvalidSignature)
	})
}

// Flipping any single bit of a valid signature must fail verification.
func TestVerify_BitFlip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	message := []byte("bit flip resistance")
	sigHex, err := SignPersonal(message, key)
	require.NoError(t, err)
	sig, err := hexutil.Decode(sigHex)
	require.NoError(t, err)

	v := NewVerifier(0)
	for i := 0; i < len(sig); i++ {
		flipped := make([]byte, len(sig))
		copy(flipped, sig)
		flipped[i] ^= 0x01

		err := v.Verify(context.Background(), message, hexutil.Encode(flipped), addr)
		assert.Error(t, err, "flipped byte %d still verified", i)
	}
}

func TestNormalizeAddress(t *testing.T) {
	addr, err := NormalizeAddress("0x8ba1f109551bd432803012645ac136ddd64dba72")
	require.NoError(t, err)
	upper, err := NormalizeAddress("0x8BA1F109551BD432803012645AC136DDD64DBA72")
	require.NoError(t, err)
	assert.Equal(t, addr, upper)

	_, err = NormalizeAddress("not-an-address")
	assert.ErrorIs(t, err, core.ErrInvalidAddress)
}
