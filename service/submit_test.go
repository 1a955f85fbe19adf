package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/defi_custody/model"
	"github.com/defi_custody/repository"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// fakePool satisfies ChainPool without a network.
type fakePool struct {
	buildErr error
}

func (p *fakePool) descriptor(user common.Address) *TxDescriptor {
	return &TxDescriptor{
		From:     user,
		To:       common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Data:     []byte{0x01, 0x02},
		Value:    big.NewInt(0),
		Gas:      210000,
		GasPrice: big.NewInt(1_000_000_000),
	}
}

func (p *fakePool) BuildSupply(ctx context.Context, user common.Address, amount *big.Int) (*TxDescriptor, error) {
	if p.buildErr != nil {
		return nil, p.buildErr
	}
	return p.descriptor(user), nil
}

func (p *fakePool) BuildWithdraw(ctx context.Context, user common.Address, amount *big.Int) (*TxDescriptor, error) {
	if p.buildErr != nil {
		return nil, p.buildErr
	}
	return p.descriptor(user), nil
}

func (p *fakePool) FetchMarketSnapshot(ctx context.Context) (*MarketSnapshot, error) {
	return &MarketSnapshot{Reserve: "0xreserve", FetchedAt: time.Now()}, nil
}

// fakeCaster satisfies TxBroadcaster. When block is non-nil the
// broadcast stalls until the channel closes.
type fakeCaster struct {
	hash  common.Hash
	err   error
	block chan struct{}
	calls int
}

func (c *fakeCaster) SignAndBroadcast(ctx context.Context, d *TxDescriptor) (common.Hash, error) {
	c.calls++
	if c.block != nil {
		<-c.block
	}
	if c.err != nil {
		return common.Hash{}, c.err
	}
	return c.hash, nil
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "read tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type submitTestEnv struct {
	svc    *SubmitService
	ledger *repository.TransactionRepository
	pool   *fakePool
	caster *fakeCaster
	userID string
	addr   string
}

func setupSubmitTest(t *testing.T) *submitTestEnv {
	t.Helper()
	db := newTestDB(t)
	wallets := repository.NewWalletRepository(db)
	ledger := repository.NewTransactionRepository(db)

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
	userID := uuid.NewString()
	w := &model.Wallet{UserID: userID, Address: addr, Verified: true}
	if err := wallets.Create(context.Background(), w); err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	pool := &fakePool{}
	caster := &fakeCaster{hash: common.HexToHash("0xbeef")}
	svc := NewSubmitService(wallets, ledger, pool, caster, zerolog.Nop())
	return &submitTestEnv{svc: svc, ledger: ledger, pool: pool, caster: caster, userID: userID, addr: addr}
}

func (env *submitTestEnv) ledgerCount(t *testing.T) int64 {
	t.Helper()
	n, err := env.ledger.CountByUser(context.Background(), env.userID)
	if err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	return n
}

func TestSubmitRecordsExactlyOne(t *testing.T) {
	env := setupSubmitTest(t)
	ctx := context.Background()

	hash, err := env.svc.Submit(ctx, env.userID, model.TxKindDeposit, env.addr, "1000000")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if hash != env.caster.hash.Hex() {
		t.Fatalf("hash = %s, want %s", hash, env.caster.hash.Hex())
	}
	if n := env.ledgerCount(t); n != 1 {
		t.Fatalf("ledger rows = %d, want 1", n)
	}

	list, _, err := env.svc.ListTransactions(ctx, env.userID, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	rec := list[0]
	if rec.TransactionHash != hash {
		t.Fatalf("recorded hash %s != returned hash %s", rec.TransactionHash, hash)
	}
	if rec.Type != model.TxKindDeposit || rec.Address != env.addr || rec.Amount != "1000000" {
		t.Fatalf("record mismatch: %+v", rec)
	}
}

func TestSubmitBuildFailureWritesNothing(t *testing.T) {
	env := setupSubmitTest(t)
	env.pool.buildErr = errors.New("reserve paused")

	before := env.ledgerCount(t)
	_, err := env.svc.Submit(context.Background(), env.userID, model.TxKindWithdraw, env.addr, "1000000")
	if !errors.Is(err, ErrUpstreamChain) {
		t.Fatalf("err = %v, want ErrUpstreamChain", err)
	}
	if after := env.ledgerCount(t); after != before {
		t.Fatalf("ledger changed on build failure: %d -> %d", before, after)
	}
	if env.caster.calls != 0 {
		t.Fatal("broadcast attempted after failed build")
	}
}

func TestSubmitUnknownWallet(t *testing.T) {
	env := setupSubmitTest(t)
	_, err := env.svc.Submit(context.Background(), env.userID, model.TxKindDeposit,
		"0x0000000000000000000000000000000000000003", "5")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	// Foreign ownership is also NotFound.
	_, err = env.svc.Submit(context.Background(), uuid.NewString(), model.TxKindDeposit, env.addr, "5")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSubmitMalformedAmount(t *testing.T) {
	env := setupSubmitTest(t)
	for _, amount := range []string{"", "12.5", "-3", "1e18", "0", "abc"} {
		if _, err := env.svc.Submit(context.Background(), env.userID, model.TxKindDeposit, env.addr, amount); !errors.Is(err, ErrUpstreamChain) {
			t.Fatalf("amount %q: err = %v, want ErrUpstreamChain", amount, err)
		}
	}
	if n := env.ledgerCount(t); n != 0 {
		t.Fatalf("ledger rows = %d, want 0", n)
	}
}

func TestSubmitBroadcastTransportFailureIsIndeterminate(t *testing.T) {
	env := setupSubmitTest(t)
	env.caster.err = fmt.Errorf("send transaction: %w", timeoutErr{})

	_, err := env.svc.Submit(context.Background(), env.userID, model.TxKindDeposit, env.addr, "42")
	if !errors.Is(err, ErrIndeterminate) {
		t.Fatalf("err = %v, want ErrIndeterminate", err)
	}
	if n := env.ledgerCount(t); n != 0 {
		t.Fatalf("ledger rows = %d, want 0", n)
	}
}

func TestSubmitBroadcastRejection(t *testing.T) {
	env := setupSubmitTest(t)
	env.caster.err = errors.New("execution reverted")

	_, err := env.svc.Submit(context.Background(), env.userID, model.TxKindWithdraw, env.addr, "42")
	if !errors.Is(err, ErrUpstreamChain) {
		t.Fatalf("err = %v, want ErrUpstreamChain", err)
	}
	if errors.Is(err, ErrIndeterminate) {
		t.Fatal("definite rejection classified as indeterminate")
	}
}

func TestSubmitPersistFailureAfterBroadcast(t *testing.T) {
	env := setupSubmitTest(t)

	// Force the recording phase to fail after a successful broadcast.
	db := newTestDB(t)
	if err := db.Migrator().DropTable(&model.Transaction{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	brokenLedger := repository.NewTransactionRepository(db)

	wallets := repository.NewWalletRepository(db)
	w := &model.Wallet{UserID: env.userID, Address: env.addr, Verified: true}
	if err := wallets.Create(context.Background(), w); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	svc := NewSubmitService(wallets, brokenLedger, env.pool, env.caster, zerolog.Nop())

	_, err := svc.Submit(context.Background(), env.userID, model.TxKindDeposit, env.addr, "7")
	if !errors.Is(err, ErrPostSubmitPersist) {
		t.Fatalf("err = %v, want ErrPostSubmitPersist", err)
	}
	if !strings.Contains(err.Error(), env.caster.hash.Hex()) {
		t.Fatalf("persist failure does not carry the hash: %v", err)
	}
}

func TestSubmitCallerCancellationKeepsBookkeeping(t *testing.T) {
	env := setupSubmitTest(t)
	env.caster.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := env.svc.Submit(ctx, env.userID, model.TxKindDeposit, env.addr, "9")
		errc <- err
	}()

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrIndeterminate) {
			t.Fatalf("err = %v, want ErrIndeterminate", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("submit did not return after caller cancellation")
	}

	// Release the broadcast: the server-side wait must still record.
	close(env.caster.block)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if env.ledgerCount(t) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("ledger entry never recorded after caller abandoned the wait")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
