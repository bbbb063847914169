package solana

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/blocto/solana-go-sdk/client"
	"github.com/mr-tron/base58"

	"TokenPulse/internal/domain/models"
	xhttp "TokenPulse/pkg/http"
	applogger "TokenPulse/pkg/logger"
)

// SPL token program layouts.
const (
	mintLen            = 82
	mintSupplyOffset   = 36
	mintDecimalsOffset = 44

	tokenAccountLen   = 165
	accountMintEnd    = 32
	accountOwnerEnd   = 64
	accountAmountEnd  = 72
	publicKeyByteSize = 32
)

// ValidateAddress checks that s is a base58 encoded 32-byte public key.
func ValidateAddress(s string) error {
	b, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("%w: %q is not base58: %v", models.ErrInvalidToken, s, err)
	}
	if len(b) != publicKeyByteSize {
		return fmt.Errorf("%w: %q decodes to %d bytes", models.ErrInvalidToken, s, len(b))
	}
	return nil
}

// MintInfo is the part of an SPL mint account the monitor needs.
type MintInfo struct {
	Supply   uint64
	Decimals uint8
}

func parseMint(data []byte) (MintInfo, error) {
	if len(data) < mintLen {
		return MintInfo{}, fmt.Errorf("%w: mint account is %d bytes", models.ErrInvalidToken, len(data))
	}
	return MintInfo{
		Supply:   binary.LittleEndian.Uint64(data[mintSupplyOffset : mintSupplyOffset+8]),
		Decimals: data[mintDecimalsOffset],
	}, nil
}

// tokenAccount is the owner and balance of an SPL token account.
type tokenAccount struct {
	Mint   string
	Owner  string
	Amount uint64
}

func parseTokenAccount(data []byte) (tokenAccount, error) {
	if len(data) < tokenAccountLen {
		return tokenAccount{}, fmt.Errorf("token account is %d bytes", len(data))
	}
	return tokenAccount{
		Mint:   base58.Encode(data[:accountMintEnd]),
		Owner:  base58.Encode(data[accountMintEnd:accountOwnerEnd]),
		Amount: binary.LittleEndian.Uint64(data[accountOwnerEnd:accountAmountEnd]),
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type largestAccountsResponse struct {
	Result *struct {
		Value []struct {
			Address string `json:"address"`
			Amount  string `json:"amount"`
		} `json:"value"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

// HolderClient polls the largest holders and the supply of a mint over Solana RPC.
type HolderClient struct {
	endpoint   string
	commitment string
	timeout    time.Duration
	http       *xhttp.Client
	rpc        *client.Client
	id         atomic.Uint64
	l          *applogger.Logger
}

func NewHolderClient(endpoint string, timeout time.Duration) *HolderClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HolderClient{
		endpoint:   endpoint,
		commitment: "confirmed",
		timeout:    timeout,
		http:       xhttp.NewClient(xhttp.WithTimeout(timeout)),
		rpc:        client.NewClient(endpoint),
	}
}

// SetLogger injects a structured logger.
func (c *HolderClient) SetLogger(l *applogger.Logger) { c.l = l }

// PollHolders returns the owners of the mint's largest token accounts. An owner
// holding several accounts appears once per account.
func (c *HolderClient) PollHolders(ctx context.Context, tokenID string, limit int) ([]models.RawBalance, error) {
	if err := ValidateAddress(tokenID); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	accounts, err := c.largestAccounts(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}

	infos, err := c.rpc.GetMultipleAccounts(ctx, accounts)
	if err != nil {
		return nil, fmt.Errorf("%w: getMultipleAccounts: %v", models.ErrConnection, err)
	}
	if len(infos) != len(accounts) {
		return nil, fmt.Errorf("%w: getMultipleAccounts returned %d accounts, expected %d", models.ErrConnection, len(infos), len(accounts))
	}

	out := make([]models.RawBalance, 0, len(infos))
	for i, info := range infos {
		acc, err := parseTokenAccount(info.Data)
		if err != nil {
			// closed between the two calls
			c.l.Debug("token account skipped", applogger.String("account", accounts[i]), applogger.Error(err))
			continue
		}
		if acc.Mint != tokenID || acc.Amount == 0 {
			continue
		}
		out = append(out, models.RawBalance{Address: acc.Owner, Balance: acc.Amount})
	}
	// the node returns accounts largest first
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *HolderClient) largestAccounts(ctx context.Context, mint string) ([]string, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.id.Add(1),
		Method:  "getTokenLargestAccounts",
		Params:  []interface{}{mint, map[string]string{"commitment": c.commitment}},
	}
	var resp largestAccountsResponse
	if err := c.http.PostJSON(ctx, c.endpoint, req, &resp); err != nil {
		return nil, fmt.Errorf("%w: getTokenLargestAccounts: %v", models.ErrConnection, err)
	}
	if resp.Error != nil {
		return nil, classifyRPCError("getTokenLargestAccounts", resp.Error)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("%w: getTokenLargestAccounts: empty result", models.ErrConnection)
	}
	out := make([]string, 0, len(resp.Result.Value))
	for _, v := range resp.Result.Value {
		if amount, err := strconv.ParseUint(v.Amount, 10, 64); err == nil && amount == 0 {
			continue
		}
		out = append(out, v.Address)
	}
	return out, nil
}

// classifyRPCError maps a JSON-RPC error to ErrInvalidToken when the node
// does not know the mint and to ErrConnection otherwise.
func classifyRPCError(method string, e *rpcError) error {
	msg := strings.ToLower(e.Message)
	if strings.Contains(msg, "could not find mint") || strings.Contains(msg, "not a token mint") ||
		strings.Contains(msg, "invalid param") {
		return fmt.Errorf("%w: %s: %s", models.ErrInvalidToken, method, e.Message)
	}
	return fmt.Errorf("%w: %s: rpc error %d: %s", models.ErrConnection, method, e.Code, e.Message)
}

// Mint reads the mint account.
func (c *HolderClient) Mint(ctx context.Context, tokenID string) (MintInfo, error) {
	if err := ValidateAddress(tokenID); err != nil {
		return MintInfo{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	infos, err := c.rpc.GetMultipleAccounts(ctx, []string{tokenID})
	if err != nil {
		return MintInfo{}, fmt.Errorf("%w: getMultipleAccounts: %v", models.ErrConnection, err)
	}
	if len(infos) != 1 {
		return MintInfo{}, fmt.Errorf("%w: getMultipleAccounts returned %d accounts", models.ErrConnection, len(infos))
	}
	return parseMint(infos[0].Data)
}

// TotalSupply reports the mint supply in base units.
func (c *HolderClient) TotalSupply(ctx context.Context, tokenID string) (uint64, error) {
	info, err := c.Mint(ctx, tokenID)
	if err != nil {
		return 0, err
	}
	return info.Supply, nil
}
