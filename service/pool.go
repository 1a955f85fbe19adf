package service

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// TxDescriptor is an unsigned chain transaction produced by the pool.
// The signing authority is external; the descriptor carries everything
// needed to sign and broadcast it.
type TxDescriptor struct {
	From     common.Address
	To       common.Address
	Data     []byte
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
}

// MarketSnapshot is a point-in-time view of the reserve.
type MarketSnapshot struct {
	Reserve            string    `json:"reserve"`
	AvailableLiquidity string    `json:"availableLiquidity"`
	NormalizedIncome   string    `json:"normalizedIncome"`
	FetchedAt          time.Time `json:"fetchedAt"`
}

// ChainPool builds lending-pool transactions for a single reserve. The
// concrete implementation is a replaceable external capability; tests
// substitute a fake.
type ChainPool interface {
	BuildSupply(ctx context.Context, user common.Address, amount *big.Int) (*TxDescriptor, error)
	BuildWithdraw(ctx context.Context, user common.Address, amount *big.Int) (*TxDescriptor, error)
	FetchMarketSnapshot(ctx context.Context) (*MarketSnapshot, error)
}

// Minimal ABI slice of an Aave-V3-style pool plus the reserve token's
// balanceOf, enough to encode supply/withdraw calldata and read market
// state.
const poolABIJSON = `[
{"inputs":[{"internalType":"address","name":"asset","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"address","name":"onBehalfOf","type":"address"},{"internalType":"uint16","name":"referralCode","type":"uint16"}],"name":"supply","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"address","name":"asset","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"address","name":"to","type":"address"}],"name":"withdraw","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"address","name":"asset","type":"address"}],"name":"getReserveNormalizedIncome","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const erc20ABIJSON = `[
{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// LendingPool targets one pool contract and one reserve asset over a
// shared RPC client.
type LendingPool struct {
	client  *ethclient.Client
	pool    common.Address
	reserve common.Address
	poolABI abi.ABI
	ercABI  abi.ABI
	log     zerolog.Logger
}

func NewLendingPool(client *ethclient.Client, pool, reserve common.Address, log zerolog.Logger) (*LendingPool, error) {
	poolABI, err := abi.JSON(strings.NewReader(poolABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	ercABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &LendingPool{
		client:  client,
		pool:    pool,
		reserve: reserve,
		poolABI: poolABI,
		ercABI:  ercABI,
		log:     log,
	}, nil
}

func (p *LendingPool) BuildSupply(ctx context.Context, user common.Address, amount *big.Int) (*TxDescriptor, error) {
	data, err := p.poolABI.Pack("supply", p.reserve, amount, user, uint16(0))
	if err != nil {
		return nil, fmt.Errorf("pack supply: %w", err)
	}
	return p.build(ctx, user, data)
}

func (p *LendingPool) BuildWithdraw(ctx context.Context, user common.Address, amount *big.Int) (*TxDescriptor, error) {
	data, err := p.poolABI.Pack("withdraw", p.reserve, amount, user)
	if err != nil {
		return nil, fmt.Errorf("pack withdraw: %w", err)
	}
	return p.build(ctx, user, data)
}

// build completes the descriptor with a gas estimate and fee suggestion.
// An estimate failure doubles as a dry run: a paused reserve or an
// amount the contract would reject fails here, before anything is
// signed or written locally.
func (p *LendingPool) build(ctx context.Context, user common.Address, data []byte) (*TxDescriptor, error) {
	msg := ethereum.CallMsg{From: user, To: &p.pool, Data: data}
	gas, err := p.client.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gasPrice, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	return &TxDescriptor{
		From:     user,
		To:       p.pool,
		Data:     data,
		Value:    big.NewInt(0),
		Gas:      gas,
		GasPrice: gasPrice,
	}, nil
}

func (p *LendingPool) FetchMarketSnapshot(ctx context.Context) (*MarketSnapshot, error) {
	income, err := p.callUint(ctx, p.pool, p.poolABI, "getReserveNormalizedIncome", p.reserve)
	if err != nil {
		return nil, fmt.Errorf("%w: reserve income: %v", ErrUpstreamChain, err)
	}
	liquidity, err := p.callUint(ctx, p.reserve, p.ercABI, "balanceOf", p.pool)
	if err != nil {
		return nil, fmt.Errorf("%w: reserve liquidity: %v", ErrUpstreamChain, err)
	}
	return &MarketSnapshot{
		Reserve:            strings.ToLower(p.reserve.Hex()),
		AvailableLiquidity: liquidity.String(),
		NormalizedIncome:   income.String(),
		FetchedAt:          time.Now().UTC(),
	}, nil
}

func (p *LendingPool) callUint(ctx context.Context, to common.Address, contractABI abi.ABI, method string, arg common.Address) (*big.Int, error) {
	data, err := contractABI.Pack(method, arg)
	if err != nil {
		return nil, err
	}
	out, err := p.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	res, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, err
	}
	v, ok := res[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s return type %T", method, res[0])
	}
	return v, nil
}
