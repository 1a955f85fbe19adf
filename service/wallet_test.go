package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/defi_custody/repository"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type walletTestEnv struct {
	svc    *WalletService
	repo   *repository.WalletRepository
	userID string
	key    *ecdsa.PrivateKey
	addr   string
}

func setupWalletTest(t *testing.T) *walletTestEnv {
	t.Helper()
	db := newTestDB(t)
	repo := repository.NewWalletRepository(db)
	svc := NewWalletService(repo, zerolog.Nop())

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
	userID := uuid.NewString()

	if _, err := svc.Create(context.Background(), userID, addr, "main"); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	return &walletTestEnv{svc: svc, repo: repo, userID: userID, key: key, addr: addr}
}

func TestCreateWalletDuplicateAddress(t *testing.T) {
	env := setupWalletTest(t)
	if _, err := env.svc.Create(context.Background(), uuid.NewString(), env.addr, "other"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestGenerateNonceRotates(t *testing.T) {
	env := setupWalletTest(t)
	ctx := context.Background()

	prev := ""
	for i := 0; i < 50; i++ {
		addr, nonce, err := env.svc.GenerateNonce(ctx, env.userID, env.addr)
		if err != nil {
			t.Fatalf("generate nonce: %v", err)
		}
		if addr != env.addr {
			t.Fatalf("address = %s, want %s", addr, env.addr)
		}
		if nonce == prev {
			t.Fatalf("nonce repeated across consecutive issuances at %d", i)
		}
		w, err := env.repo.FindByAddress(ctx, env.addr)
		if err != nil {
			t.Fatalf("find wallet: %v", err)
		}
		if w.Nonce != nonce {
			t.Fatalf("stored nonce %q != issued nonce %q", w.Nonce, nonce)
		}
		prev = nonce
	}
}

func TestGenerateNonceUnknownWallet(t *testing.T) {
	env := setupWalletTest(t)
	if _, _, err := env.svc.GenerateNonce(context.Background(), env.userID, "0x0000000000000000000000000000000000000001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	// Right address, wrong owner: still not found.
	if _, _, err := env.svc.GenerateNonce(context.Background(), uuid.NewString(), env.addr); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestVerifyHappyPathThenReplay(t *testing.T) {
	env := setupWalletTest(t)
	ctx := context.Background()

	_, nonce, err := env.svc.GenerateNonce(ctx, env.userID, env.addr)
	if err != nil {
		t.Fatalf("generate nonce: %v", err)
	}
	sig := signPersonal(t, env.key, nonce)

	w, err := env.svc.Verify(ctx, env.addr, nonce, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !w.Verified {
		t.Fatal("wallet not marked verified")
	}
	if w.Nonce == nonce {
		t.Fatal("nonce not rotated after successful verification")
	}

	// Identical request again: the challenge is burnt.
	if _, err := env.svc.Verify(ctx, env.addr, nonce, sig); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("replay err = %v, want ErrUnauthorized", err)
	}
}

func TestVerifyWrongSigner(t *testing.T) {
	env := setupWalletTest(t)
	ctx := context.Background()

	_, nonce, err := env.svc.GenerateNonce(ctx, env.userID, env.addr)
	if err != nil {
		t.Fatalf("generate nonce: %v", err)
	}

	otherKey, _ := crypto.GenerateKey()
	sig := signPersonal(t, otherKey, nonce)

	// The wallet row exists, the signer mismatches: Unauthorized, never
	// NotFound.
	_, err = env.svc.Verify(ctx, env.addr, nonce, sig)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("wrong signer reported as NotFound")
	}
}

func TestVerifyStaleNonceDoesNotBurnChallenge(t *testing.T) {
	env := setupWalletTest(t)
	ctx := context.Background()

	_, first, err := env.svc.GenerateNonce(ctx, env.userID, env.addr)
	if err != nil {
		t.Fatalf("generate nonce: %v", err)
	}
	_, second, err := env.svc.GenerateNonce(ctx, env.userID, env.addr)
	if err != nil {
		t.Fatalf("generate nonce: %v", err)
	}

	// Attempt with the stale challenge fails without burning the
	// active one.
	if _, err := env.svc.Verify(ctx, env.addr, first, signPersonal(t, env.key, first)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stale nonce err = %v, want ErrUnauthorized", err)
	}

	// A garbage signature over the current challenge fails but leaves
	// it live.
	if _, err := env.svc.Verify(ctx, env.addr, second, "0xdead"); !errors.Is(err, ErrMalformedSignature) {
		t.Fatalf("garbage signature err = %v, want ErrMalformedSignature", err)
	}

	// The real owner can still consume the current challenge.
	if _, err := env.svc.Verify(ctx, env.addr, second, signPersonal(t, env.key, second)); err != nil {
		t.Fatalf("verify after failed attempts: %v", err)
	}
}

func TestVerifyUnknownAddress(t *testing.T) {
	env := setupWalletTest(t)
	sig := signPersonal(t, env.key, "whatever")
	if _, err := env.svc.Verify(context.Background(), "0x0000000000000000000000000000000000000002", "whatever", sig); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestConcurrentGenerateNonce(t *testing.T) {
	env := setupWalletTest(t)
	ctx := context.Background()

	const workers = 8
	nonces := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, nonce, err := env.svc.GenerateNonce(ctx, env.userID, env.addr)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			nonces[i] = nonce
		}(i)
	}
	wg.Wait()

	// Exactly one issued challenge is retrievable afterwards.
	w, err := env.repo.FindByAddress(ctx, env.addr)
	if err != nil {
		t.Fatalf("find wallet: %v", err)
	}
	current := 0
	for _, n := range nonces {
		if n == w.Nonce {
			current++
		}
	}
	if current != 1 {
		t.Fatalf("%d issued challenges match the stored nonce, want exactly 1", current)
	}

	// Only the holder of the stored challenge can verify.
	for _, n := range nonces {
		if n == w.Nonce {
			continue
		}
		if _, err := env.svc.Verify(ctx, env.addr, n, signPersonal(t, env.key, n)); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("stale concurrent nonce verified: %v", err)
		}
	}
	if _, err := env.svc.Verify(ctx, env.addr, w.Nonce, signPersonal(t, env.key, w.Nonce)); err != nil {
		t.Fatalf("current nonce rejected: %v", err)
	}
}

func TestDeleteLastWallet(t *testing.T) {
	env := setupWalletTest(t)
	ctx := context.Background()

	if err := env.svc.Delete(ctx, env.userID, env.addr); !errors.Is(err, ErrLastWallet) {
		t.Fatalf("err = %v, want ErrLastWallet", err)
	}

	// With a second wallet the first becomes deletable.
	otherKey, _ := crypto.GenerateKey()
	other := strings.ToLower(crypto.PubkeyToAddress(otherKey.PublicKey).Hex())
	if _, err := env.svc.Create(ctx, env.userID, other, "second"); err != nil {
		t.Fatalf("create second wallet: %v", err)
	}
	if err := env.svc.Delete(ctx, env.userID, env.addr); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.svc.Get(ctx, env.userID, env.addr); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted wallet still found: %v", err)
	}
}

func TestUpdateAliasOnly(t *testing.T) {
	env := setupWalletTest(t)
	ctx := context.Background()

	w, err := env.svc.UpdateAlias(ctx, env.userID, env.addr, "savings")
	if err != nil {
		t.Fatalf("update alias: %v", err)
	}
	if w.Alias != "savings" {
		t.Fatalf("alias = %q, want savings", w.Alias)
	}

	stored, err := env.repo.FindByAddress(ctx, env.addr)
	if err != nil {
		t.Fatalf("find wallet: %v", err)
	}
	if stored.Alias != "savings" {
		t.Fatalf("stored alias = %q", stored.Alias)
	}
	if stored.Verified {
		t.Fatal("alias update touched the verified flag")
	}
	if stored.UserID != env.userID {
		t.Fatalf("owner changed to %s", stored.UserID)
	}
}
