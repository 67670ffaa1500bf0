package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// healthAccessABI describes the on-chain record log contract: an append-only
// list of (patient, recordHash, timestamp) entries.
const healthAccessABI = `[
	{"type":"function","name":"createRecord","stateMutability":"nonpayable",
	 "inputs":[{"name":"patient","type":"address"},{"name":"recordHash","type":"string"}],
	 "outputs":[]},
	{"type":"function","name":"getLog","stateMutability":"view",
	 "inputs":[{"name":"id","type":"uint256"}],
	 "outputs":[{"name":"patient","type":"address"},{"name":"recordHash","type":"string"},{"name":"timestamp","type":"uint256"}]},
	{"type":"function","name":"logCount","stateMutability":"view",
	 "inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

// EthereumConfig configures the Ethereum anchor client.
type EthereumConfig struct {
	// RPCURL is the JSON-RPC endpoint of the node.
	RPCURL string

	// ContractAddress is the deployed record log contract.
	ContractAddress string

	// PrivateKey is the hex-encoded signing key of the service account,
	// with or without 0x prefix.
	PrivateKey string

	// ChainID selects the chain for transaction signing.
	ChainID int64
}

func (c EthereumConfig) validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("ledger: rpc url is required")
	}
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("ledger: invalid contract address %q", c.ContractAddress)
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("ledger: private key is required")
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("ledger: chain id must be positive, got %d", c.ChainID)
	}
	return nil
}

// Ethereum anchors records through an EVM contract.
//
// Transactions are serialized with a mutex: the node assigns nonces from
// pending state, and two in-flight submissions from the same account would
// race for the same nonce.
type Ethereum struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	opts     *bind.TransactOpts

	mu sync.Mutex
}

// NewEthereum dials the node and binds the record log contract.
func NewEthereum(ctx context.Context, cfg EthereumConfig) (*Ethereum, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial %s: %w", cfg.RPCURL, err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ledger: parse private key: %w", err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(cfg.ChainID))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ledger: build transactor: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(healthAccessABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ledger: parse contract abi: %w", err)
	}

	contract := bind.NewBoundContract(common.HexToAddress(cfg.ContractAddress), parsed, client, client, client)

	return &Ethereum{
		client:   client,
		contract: contract,
		opts:     opts,
	}, nil
}

// Close releases the underlying RPC connection.
func (e *Ethereum) Close() {
	e.client.Close()
}

// CreateRecord submits createRecord(patient, cid) and blocks until the
// transaction is mined with one confirmation. Exactly one submission per
// call - the caller decides whether a failure is retried.
func (e *Ethereum) CreateRecord(ctx context.Context, accountAddress, cid string) (string, error) {
	if !common.IsHexAddress(accountAddress) {
		return "", fmt.Errorf("ledger: invalid account address %q", accountAddress)
	}
	if cid == "" {
		return "", fmt.Errorf("ledger: content identifier is required")
	}

	e.mu.Lock()
	opts := *e.opts
	opts.Context = ctx
	tx, err := e.contract.Transact(&opts, "createRecord", common.HexToAddress(accountAddress), cid)
	e.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("ledger: submit createRecord: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, e.client, tx)
	if err != nil {
		return "", fmt.Errorf("ledger: wait for confirmation of %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("ledger: transaction %s reverted", tx.Hash().Hex())
	}

	return tx.Hash().Hex(), nil
}

// GetLog reads one audit entry from the contract.
func (e *Ethereum) GetLog(ctx context.Context, id int64) (LogEntry, error) {
	var out []interface{}
	err := e.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getLog", big.NewInt(id))
	if err != nil {
		return LogEntry{}, fmt.Errorf("ledger: getLog(%d): %w", id, err)
	}
	return parseLogEntry(out)
}

// Count returns the number of entries in the on-chain log.
func (e *Ethereum) Count(ctx context.Context) (int64, error) {
	var out []interface{}
	err := e.contract.Call(&bind.CallOpts{Context: ctx}, &out, "logCount")
	if err != nil {
		return 0, fmt.Errorf("ledger: logCount: %w", err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("ledger: logCount returned %d values, want 1", len(out))
	}
	count, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("ledger: logCount returned %T, want *big.Int", out[0])
	}
	return count.Int64(), nil
}

// parseLogEntry converts the raw getLog output tuple into a LogEntry.
func parseLogEntry(out []interface{}) (LogEntry, error) {
	if len(out) != 3 {
		return LogEntry{}, fmt.Errorf("ledger: getLog returned %d values, want 3", len(out))
	}

	patient, ok := out[0].(common.Address)
	if !ok {
		return LogEntry{}, fmt.Errorf("ledger: getLog patient is %T, want address", out[0])
	}
	cid, ok := out[1].(string)
	if !ok {
		return LogEntry{}, fmt.Errorf("ledger: getLog recordHash is %T, want string", out[1])
	}
	timestamp, ok := out[2].(*big.Int)
	if !ok {
		return LogEntry{}, fmt.Errorf("ledger: getLog timestamp is %T, want *big.Int", out[2])
	}

	return LogEntry{
		Patient:   patient.Hex(),
		CID:       cid,
		Timestamp: timestamp.Int64(),
	}, nil
}
