package service

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/tyler-smith/go-bip39"
)

// TxBroadcaster signs a built descriptor and submits it to the network,
// returning the submission hash once the network accepts it.
type TxBroadcaster interface {
	SignAndBroadcast(ctx context.Context, d *TxDescriptor) (common.Hash, error)
}

// Broadcaster signs via a remote signing service when configured, or
// with a locally derived key otherwise (development only). Either way
// the signed transaction is pushed through the shared RPC client.
type Broadcaster struct {
	client    *ethclient.Client
	remoteURL string
	httpc     *http.Client
	key       *ecdsa.PrivateKey
	chainID   *big.Int
	log       zerolog.Logger
}

func NewBroadcaster(client *ethclient.Client, remoteURL, mnemonic string, chainID int64, log zerolog.Logger) (*Broadcaster, error) {
	b := &Broadcaster{
		client:    client,
		remoteURL: remoteURL,
		httpc:     http.DefaultClient,
		chainID:   big.NewInt(chainID),
		log:       log,
	}
	if remoteURL == "" {
		key, err := deriveKey(mnemonic)
		if err != nil {
			return nil, err
		}
		b.key = key
		log.Warn().
			Str("address", crypto.PubkeyToAddress(key.PublicKey).Hex()).
			Msg("no remote signer configured, signing with local key")
	}
	return b, nil
}

// deriveKey derives the signing key at m/44'/60'/0'/0/0 from a BIP-39
// mnemonic.
func deriveKey(mnemonic string) (*ecdsa.PrivateKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid signer mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}
	path := []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 60,
		hdkeychain.HardenedKeyStart + 0,
		0,
		0,
	}
	key := master
	for _, idx := range path {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("derive child %d: %w", idx, err)
		}
	}
	ecPriv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("extract private key: %w", err)
	}
	return ecPriv.ToECDSA(), nil
}

func (b *Broadcaster) SignAndBroadcast(ctx context.Context, d *TxDescriptor) (common.Hash, error) {
	var signed *types.Transaction
	var err error
	if b.remoteURL != "" {
		signed, err = b.signRemote(ctx, d)
	} else {
		signed, err = b.signLocal(ctx, d)
	}
	if err != nil {
		return common.Hash{}, err
	}

	if err := b.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	b.log.Info().
		Str("hash", signed.Hash().Hex()).
		Str("to", d.To.Hex()).
		Msg("transaction broadcast")
	return signed.Hash(), nil
}

func (b *Broadcaster) signLocal(ctx context.Context, d *TxDescriptor) (*types.Transaction, error) {
	from := crypto.PubkeyToAddress(b.key.PublicKey)
	nonce, err := b.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	tx := types.NewTransaction(nonce, d.To, d.Value, d.Gas, d.GasPrice, d.Data)
	signed, err := types.SignTx(tx, types.NewLondonSigner(b.chainID), b.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

// signRemote posts the descriptor to the signing service and expects the
// signed transaction back as raw hex.
func (b *Broadcaster) signRemote(ctx context.Context, d *TxDescriptor) (*types.Transaction, error) {
	payload, err := json.Marshal(map[string]string{
		"from":     strings.ToLower(d.From.Hex()),
		"to":       strings.ToLower(d.To.Hex()),
		"data":     hexutil.Encode(d.Data),
		"value":    d.Value.String(),
		"gas":      fmt.Sprintf("%d", d.Gas),
		"gasPrice": d.GasPrice.String(),
		"chainId":  b.chainID.String(),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.remoteURL+"/sign", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote signer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote signer returned %d", resp.StatusCode)
	}

	var out struct {
		SignedTx string `json:"signed_tx"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode signer response: %w", err)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(out.SignedTx, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode signed tx hex: %w", err)
	}
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("unmarshal signed tx: %w", err)
	}
	return &tx, nil
}
