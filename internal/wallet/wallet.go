// Package wallet manages per-tournament custodial keys and native-currency transfers.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"neural-garden/internal/config"
	"neural-garden/internal/constants"
	"neural-garden/internal/domain"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrChainUnavailable = errors.New("chain client not configured")

// Backend is the subset of an Ethereum JSON-RPC client used for transfers.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

type Client struct {
	backend    Backend
	passphrase string
	scryptN    int
	scryptP    int
	logger     zerolog.Logger

	chainMu sync.Mutex
	chainID *big.Int
}

// Handle is an imported, decrypted custodial wallet.
type Handle struct {
	Address common.Address
	key     *ecdsa.PrivateKey
}

type TransferResult struct {
	TxHash string
	Status domain.PayoutStatus
}

func New(backend Backend, passphrase string, logger zerolog.Logger) *Client {
	return &Client{
		backend:    backend,
		passphrase: passphrase,
		scryptN:    keystore.StandardScryptN,
		scryptP:    keystore.StandardScryptP,
		logger:     logger,
	}
}

// WithLightScrypt lowers key-derivation cost; meant for tests and local chains.
func (c *Client) WithLightScrypt() *Client {
	c.scryptN = keystore.LightScryptN
	c.scryptP = keystore.LightScryptP
	return c
}

func Provide(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	if cfg.EthRPCURL == "" {
		logger.Warn().Msg("ETH_RPC_URL not set, prize transfers are disabled")
		return New(nil, cfg.WalletPassphrase, logger), nil
	}

	rpc, err := ethclient.Dial(cfg.EthRPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain rpc: %w", err)
	}
	c := New(rpc, cfg.WalletPassphrase, logger)

	ctx, cancel := context.WithTimeout(context.Background(), constants.ChainReadTimeout)
	defer cancel()
	id, err := c.ExpectChain(ctx, cfg.ChainID)
	if err != nil {
		rpc.Close()
		return nil, err
	}
	logger.Info().Str("chain_id", id.String()).Msg("connected to chain rpc")
	return c, nil
}

// ExpectChain asks the node for its chain id and fails when want is set and differs.
// Transactions are signed for the id the node reports.
func (c *Client) ExpectChain(ctx context.Context, want int64) (*big.Int, error) {
	if c.backend == nil {
		return nil, ErrChainUnavailable
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	if want != 0 && id.Cmp(big.NewInt(want)) != 0 {
		return nil, fmt.Errorf("chain rpc reports chain id %s, CHAIN_ID expects %d", id, want)
	}

	c.chainMu.Lock()
	c.chainID = id
	c.chainMu.Unlock()
	return id, nil
}

// NewCredential creates a fresh key sealed as an encrypted keystore document.
func (c *Client) NewCredential() ([]byte, string, error) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate key: %w", err)
	}
	key := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(pk.PublicKey),
		PrivateKey: pk,
	}
	sealed, err := keystore.EncryptKey(key, c.passphrase, c.scryptN, c.scryptP)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encrypt key: %w", err)
	}
	return sealed, strings.ToLower(key.Address.Hex()), nil
}

func (c *Client) Import(credential []byte) (*Handle, error) {
	key, err := keystore.DecryptKey(credential, c.passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to import wallet: %w", err)
	}
	return &Handle{Address: key.Address, key: key.PrivateKey}, nil
}

func (c *Client) chain(ctx context.Context) (*big.Int, error) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()

	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	c.chainID = id
	return id, nil
}

// Send signs and broadcasts a native transfer without waiting for inclusion.
func (c *Client) Send(ctx context.Context, h *Handle, amountWei *big.Int, destination string) (*types.Transaction, error) {
	if c.backend == nil {
		return nil, domain.ExternalService("prize transfers are disabled", false, ErrChainUnavailable)
	}
	if !common.IsHexAddress(destination) {
		return nil, domain.Validation("invalid destination address")
	}
	if amountWei == nil || amountWei.Sign() <= 0 {
		return nil, domain.Validation("transfer amount must be positive")
	}

	chainID, err := c.chain(ctx)
	if err != nil {
		return nil, chainError("failed to read chain id", err)
	}
	nonce, err := c.backend.PendingNonceAt(ctx, h.Address)
	if err != nil {
		return nil, chainError("failed to read nonce", err)
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, chainError("failed to suggest gas tip", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, chainError("failed to read latest header", err)
	}

	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	to := common.HexToAddress(destination)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       constants.TransferGasLimit,
		To:        &to,
		Value:     amountWei,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), h.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transfer: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, chainError("failed to broadcast transfer", err)
	}

	c.logger.Info().
		Str("tx_hash", signed.Hash().Hex()).
		Str("from", h.Address.Hex()).
		Str("to", to.Hex()).
		Str("value_wei", amountWei.String()).
		Msg("transfer broadcast")

	return signed, nil
}

// Transfer sends and waits for inclusion. If ctx expires first the result is
// PENDING with the broadcast hash, so the payout must not be re-sent blindly.
func (c *Client) Transfer(ctx context.Context, h *Handle, amountWei *big.Int, destination string) (*TransferResult, error) {
	tx, err := c.Send(ctx, h, amountWei, destination)
	if err != nil {
		return nil, err
	}

	hash := tx.Hash().Hex()
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			c.logger.Warn().Str("tx_hash", hash).Msg("transfer not confirmed before deadline")
			return &TransferResult{TxHash: hash, Status: domain.PayoutPending}, nil
		}
		return &TransferResult{TxHash: hash, Status: domain.PayoutPending}, chainError("failed to confirm transfer", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return &TransferResult{TxHash: hash, Status: domain.PayoutFailed}, domain.ExternalService("transfer reverted", false, nil)
	}
	return &TransferResult{TxHash: hash, Status: domain.PayoutSucceeded}, nil
}

// ReceiptStatus reports the settled state of a broadcast transfer. A transaction
// the node no longer knows about is reported FAILED so it can be re-sent.
func (c *Client) ReceiptStatus(ctx context.Context, txHash string) (domain.PayoutStatus, error) {
	if c.backend == nil {
		return "", domain.ExternalService("prize transfers are disabled", false, ErrChainUnavailable)
	}
	hash := common.HexToHash(txHash)

	receipt, err := c.backend.TransactionReceipt(ctx, hash)
	if err == nil {
		if receipt.Status == types.ReceiptStatusSuccessful {
			return domain.PayoutSucceeded, nil
		}
		return domain.PayoutFailed, nil
	}
	if !errors.Is(err, ethereum.NotFound) {
		return "", chainError("failed to read receipt", err)
	}

	_, _, err = c.backend.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return domain.PayoutFailed, nil
	}
	if err != nil {
		return "", chainError("failed to read transaction", err)
	}
	return domain.PayoutPending, nil
}

// VerifyEntry checks that txHash is a successful payment of at least minValue
// from the participant to the tournament treasury.
func (c *Client) VerifyEntry(ctx context.Context, txHash, from, treasury string, minValue *big.Int) error {
	if c.backend == nil {
		return domain.ExternalService("entry verification is unavailable", false, ErrChainUnavailable)
	}
	hash := common.HexToHash(txHash)

	tx, pending, err := c.backend.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return domain.Validation("entry transaction not found")
	}
	if err != nil {
		return chainError("failed to read entry transaction", err)
	}
	if pending {
		return domain.Validation("entry transaction is not confirmed yet")
	}

	receipt, err := c.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		return chainError("failed to read entry receipt", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return domain.Validation("entry transaction failed on chain")
	}

	if tx.To() == nil || !strings.EqualFold(tx.To().Hex(), treasury) {
		return domain.Validation("entry transaction was not sent to the tournament treasury")
	}
	if minValue != nil && tx.Value().Cmp(minValue) < 0 {
		return domain.Validation("entry transaction value is below the entry fee")
	}

	chainID, err := c.chain(ctx)
	if err != nil {
		return chainError("failed to read chain id", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return domain.Validation("entry transaction sender could not be recovered")
	}
	if !strings.EqualFold(sender.Hex(), from) {
		return domain.Validation("entry transaction was sent from a different address")
	}
	return nil
}

func chainError(msg string, err error) error {
	return domain.ExternalService(msg, errors.Is(err, context.DeadlineExceeded), err)
}
