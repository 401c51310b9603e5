package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/0xsequence/ethkit/go-ethereum/common"
	"github.com/0xsequence/ethkit/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halyardhq/walletgate/auth"
	"github.com/halyardhq/walletgate/auth/delegated"
	"github.com/halyardhq/walletgate/auth/localproof"
	"github.com/halyardhq/walletgate/auth/remote"
	"github.com/halyardhq/walletgate/auth/walletsig"
	"github.com/halyardhq/walletgate/data"
	"github.com/halyardhq/walletgate/proto"
	"github.com/halyardhq/walletgate/wallet"
)

const testLocalSecret = "test-local-proof-secret"

func newWalletKey(t *testing.T) (privHex string, address string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return common.Bytes2Hex(crypto.FromECDSA(key)), crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func newResolver(t *testing.T, mode auth.Mode, remoteClient *remote.Client, allowedProviders []string) *auth.Resolver {
	t.Helper()
	log := zerolog.Nop()
	challenges := data.NewChallengeStore(nil, false, log)
	policy := auth.NewProviderPolicy(allowedProviders, remoteClient.Configured(), mode)
	verifiers := []auth.Verifier{
		walletsig.NewVerifier(),
		delegated.NewVerifier(remoteClient, mode, testLocalSecret, "", log),
	}
	return auth.NewResolver(challenges, policy, verifiers, 5*time.Minute, log)
}

func TestWalletChallengeVerify(t *testing.T) {
	ctx := context.Background()
	r := newResolver(t, auth.PermissiveWithLocalFallback, nil, nil)

	key, address := newWalletKey(t)

	ch, err := r.Challenge(ctx, &proto.ChallengeParams{Method: proto.Method_Wallet})
	require.NoError(t, err)
	assert.NotEmpty(t, ch.ChallengeID)
	assert.NotEmpty(t, ch.Challenge)
	assert.Equal(t, (5 * time.Minute).Milliseconds(), ch.ExpiresInMs)

	sig, err := walletsig.SignMessage(key, ch.Challenge)
	require.NoError(t, err)

	resolved, err := r.Verify(ctx, &proto.VerifyParams{
		ChallengeID:   ch.ChallengeID,
		Method:        proto.Method_Wallet,
		WalletAddress: address,
		Proof:         sig,
	})
	require.NoError(t, err)
	assert.Equal(t, proto.NormalizeAddress(address), resolved.WalletAddress)
	assert.Equal(t, proto.ProviderWallet, resolved.Provider)

	// The challenge is single-use: replaying the same proof fails.
	_, err = r.Verify(ctx, &proto.VerifyParams{
		ChallengeID:   ch.ChallengeID,
		Method:        proto.Method_Wallet,
		WalletAddress: address,
		Proof:         sig,
	})
	assert.ErrorIs(t, err, proto.ErrChallengeExpired)
}

func TestWalletAddressMismatch(t *testing.T) {
	ctx := context.Background()
	r := newResolver(t, auth.PermissiveWithLocalFallback, nil, nil)

	signingKey, _ := newWalletKey(t)
	_, claimedAddress := newWalletKey(t)

	ch, err := r.Challenge(ctx, &proto.ChallengeParams{Method: proto.Method_Wallet})
	require.NoError(t, err)

	sig, err := walletsig.SignMessage(signingKey, ch.Challenge)
	require.NoError(t, err)

	_, err = r.Verify(ctx, &proto.VerifyParams{
		ChallengeID:   ch.ChallengeID,
		Method:        proto.Method_Wallet,
		WalletAddress: claimedAddress,
		Proof:         sig,
	})
	assert.ErrorIs(t, err, proto.ErrVerificationFailed)

	// A failed attempt burns the challenge.
	_, err = r.Verify(ctx, &proto.VerifyParams{
		ChallengeID:   ch.ChallengeID,
		Method:        proto.Method_Wallet,
		WalletAddress: claimedAddress,
		Proof:         sig,
	})
	assert.ErrorIs(t, err, proto.ErrChallengeExpired)
}

func TestMethodMismatchBurnsChallenge(t *testing.T) {
	ctx := context.Background()
	r := newResolver(t, auth.PermissiveWithLocalFallback, nil, nil)

	ch, err := r.Challenge(ctx, &proto.ChallengeParams{Method: proto.Method_Social, Provider: "google"})
	require.NoError(t, err)

	key, address := newWalletKey(t)
	sig, err := walletsig.SignMessage(key, ch.Challenge)
	require.NoError(t, err)

	_, err = r.Verify(ctx, &proto.VerifyParams{
		ChallengeID:   ch.ChallengeID,
		Method:        proto.Method_Wallet,
		WalletAddress: address,
		Proof:         sig,
	})
	assert.ErrorIs(t, err, proto.ErrVerificationFailed)
}

func TestProviderAllowList(t *testing.T) {
	ctx := context.Background()
	r := newResolver(t, auth.PermissiveWithLocalFallback, nil, []string{"google"})

	// Disallowed providers never get a challenge issued.
	_, err := r.Challenge(ctx, &proto.ChallengeParams{Method: proto.Method_Social, Provider: "github"})
	assert.ErrorIs(t, err, proto.ErrProviderNotAllowed)

	// Allowed providers do, case-insensitively.
	ch, err := r.Challenge(ctx, &proto.ChallengeParams{Method: proto.Method_Social, Provider: "Google"})
	require.NoError(t, err)
	assert.NotEmpty(t, ch.Challenge)
}

func TestSocialLocalFallback(t *testing.T) {
	ctx := context.Background()
	r := newResolver(t, auth.PermissiveWithLocalFallback, nil, nil)

	ch, err := r.Challenge(ctx, &proto.ChallengeParams{Method: proto.Method_Social, Provider: "google"})
	require.NoError(t, err)

	payload := localproof.Payload("social", "google", "sub-123", ch.Challenge, "")
	proof := localproof.Compute(testLocalSecret, payload)

	resolved, err := r.Verify(ctx, &proto.VerifyParams{
		ChallengeID: ch.ChallengeID,
		Method:      proto.Method_Social,
		Provider:    "google",
		Subject:     "sub-123",
		Proof:       proof,
	})
	require.NoError(t, err)
	assert.Equal(t, wallet.Derive("google", "sub-123"), resolved.WalletAddress)
	assert.Equal(t, "google", resolved.Provider)
	assert.Equal(t, "sub-123", resolved.Subject)

	// Wrong secret produces a proof that does not verify.
	ch2, err := r.Challenge(ctx, &proto.ChallengeParams{Method: proto.Method_Social, Provider: "google"})
	require.NoError(t, err)
	badProof := localproof.Compute("wrong-secret", localproof.Payload("social", "google", "sub-123", ch2.Challenge, ""))
	_, err = r.Verify(ctx, &proto.VerifyParams{
		ChallengeID: ch2.ChallengeID,
		Method:      proto.Method_Social,
		Provider:    "google",
		Subject:     "sub-123",
		Proof:       badProof,
	})
	assert.ErrorIs(t, err, proto.ErrVerificationFailed)
}

func TestStrictModeRequiresRemote(t *testing.T) {
	ctx := context.Background()
	r := newResolver(t, auth.Strict, nil, nil)

	ch, err := r.Challenge(ctx, &proto.ChallengeParams{Method: proto.Method_Social, Provider: "google"})
	require.NoError(t, err)

	payload := localproof.Payload("social", "google", "sub-123", ch.Challenge, "")
	proof := localproof.Compute(testLocalSecret, payload)

	// A valid local proof is not accepted in strict mode without a remote.
	_, err = r.Verify(ctx, &proto.VerifyParams{
		ChallengeID: ch.ChallengeID,
		Method:      proto.Method_Social,
		Provider:    "google",
		Subject:     "sub-123",
		Proof:       proof,
	})
	assert.ErrorIs(t, err, proto.ErrProviderNotConfigured)
}

func TestStrictModeWithRemote(t *testing.T) {
	ctx := context.Background()
	attested := "0x9aF0e55B38bAfDd4EC443Ad0bf5b7149F0EFf93e"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.NotEmpty(t, req.Header.Get(remote.HeaderSignature))
		json.NewEncoder(w).Encode(map[string]any{
			"ok":            true,
			"walletAddress": attested,
			"provider":      body["provider"],
			"subject":       body["subject"],
		})
	}))
	defer srv.Close()

	remoteClient := remote.NewClient(srv.URL, "remote-secret", time.Second, srv.Client())
	r := newResolver(t, auth.Strict, remoteClient, nil)

	ch, err := r.Challenge(ctx, &proto.ChallengeParams{Method: proto.Method_Social, Provider: "google"})
	require.NoError(t, err)

	resolved, err := r.Verify(ctx, &proto.VerifyParams{
		ChallengeID: ch.ChallengeID,
		Method:      proto.Method_Social,
		Provider:    "google",
		Subject:     "sub-123",
		Proof:       "remote-attested-token",
	})
	require.NoError(t, err)
	assert.Equal(t, proto.NormalizeAddress(attested), resolved.WalletAddress)
}

func TestStrictModeRemoteFailureFailsClosed(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	remoteClient := remote.NewClient(srv.URL, "remote-secret", time.Second, srv.Client())

	ch := func(r *auth.Resolver) *proto.ChallengeResult {
		c, err := r.Challenge(ctx, &proto.ChallengeParams{Method: proto.Method_Social, Provider: "google"})
		require.NoError(t, err)
		return c
	}

	params := func(c *proto.ChallengeResult, secret string, challenge string) *proto.VerifyParams {
		payload := localproof.Payload("social", "google", "sub-123", challenge, "")
		return &proto.VerifyParams{
			ChallengeID: c.ChallengeID,
			Method:      proto.Method_Social,
			Provider:    "google",
			Subject:     "sub-123",
			Proof:       localproof.Compute(secret, payload),
		}
	}

	// Strict: remote failure means verification failure, even with a proof
	// the local scheme would accept.
	strict := newResolver(t, auth.Strict, remoteClient, nil)
	c := ch(strict)
	_, err := strict.Verify(ctx, params(c, testLocalSecret, c.Challenge))
	assert.ErrorIs(t, err, proto.ErrVerificationFailed)

	// Permissive: the same failure degrades to the local proof.
	permissive := newResolver(t, auth.PermissiveWithLocalFallback, remoteClient, nil)
	c = ch(permissive)
	resolved, err := permissive.Verify(ctx, params(c, testLocalSecret, c.Challenge))
	require.NoError(t, err)
	assert.Equal(t, wallet.Derive("google", "sub-123"), resolved.WalletAddress)
}

func TestVerifyParamValidation(t *testing.T) {
	ctx := context.Background()
	r := newResolver(t, auth.PermissiveWithLocalFallback, nil, nil)

	_, err := r.Verify(ctx, &proto.VerifyParams{Method: "carrier-pigeon", Proof: "x"})
	assert.ErrorIs(t, err, proto.ErrInvalidRequest)

	_, err = r.Verify(ctx, &proto.VerifyParams{Method: proto.Method_Wallet, WalletAddress: "0xabc", Proof: ""})
	assert.ErrorIs(t, err, proto.ErrInvalidRequest)

	_, err = r.Verify(ctx, &proto.VerifyParams{Method: proto.Method_Wallet, Proof: "x"})
	assert.ErrorIs(t, err, proto.ErrInvalidRequest)

	_, err = r.Verify(ctx, &proto.VerifyParams{Method: proto.Method_Wallet, WalletAddress: "not-hex", Proof: "x"})
	assert.ErrorIs(t, err, proto.ErrInvalidRequest)

	// Unknown challenge ids are indistinguishable from expired ones.
	_, err = r.Verify(ctx, &proto.VerifyParams{
		ChallengeID:   "no-such-id",
		Method:        proto.Method_Wallet,
		WalletAddress: "0x9aF0e55B38bAfDd4EC443Ad0bf5b7149F0EFf93e",
		Proof:         "x",
	})
	assert.ErrorIs(t, err, proto.ErrChallengeExpired)
}
