package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"solguess/pkg/config"
	"solguess/pkg/models"
	"solguess/pkg/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
)

var (
	PriceTimeout = 10 * time.Second
	DialTimeout  = 10 * time.Second
)

var ErrWrongNetwork = errors.New("wallet is connected to the wrong network")

// Connection is the outcome of connecting: a chain client, an optional
// separate client for push subscriptions, and the session it produced.
type Connection struct {
	Client      *ethclient.Client
	EventClient *ethclient.Client
	URL         string
	ChainID     *big.Int
	Session     models.Session
	Provider    wallet.Provider // nil when read-only
	FailedRPCs  []string
}

func (c *Connection) Close() {
	if c.EventClient != nil && c.EventClient != c.Client {
		c.EventClient.Close()
	}
	if c.Client != nil {
		c.Client.Close()
	}
}

// DialFirst tries each URL in order and returns the first client that
// answers eth_chainId.
func DialFirst(ctx context.Context, urls []string) (*ethclient.Client, string, *big.Int, []string, error) {
	var failed []string
	lastErr := errors.New("no RPC URLs configured")

	for _, rpcURL := range urls {
		dialCtx, cancel := context.WithTimeout(ctx, DialTimeout)
		client, err := ethclient.DialContext(dialCtx, rpcURL)
		if err != nil {
			cancel()
			failed = append(failed, rpcURL)
			lastErr = err
			continue
		}
		chainID, err := client.ChainID(dialCtx)
		cancel()
		if err != nil {
			client.Close()
			failed = append(failed, rpcURL)
			lastErr = err
			continue
		}
		return client, rpcURL, chainID, failed, nil
	}
	return nil, "", nil, failed, lastErr
}

// Connect requests account access from provider and dials the wallet
// endpoints. Any failure on that path, including a chain id different
// from the configured network, falls back to the read-only endpoint with
// no account. Only a failure of the read-only endpoint is returned.
func Connect(ctx context.Context, cfg config.Config, provider wallet.Provider) (*Connection, error) {
	if provider != nil {
		conn, err := connectWallet(ctx, cfg, provider)
		if err == nil {
			attachEventClient(ctx, cfg, conn)
			return conn, nil
		}
		log.Warn().Err(err).Msg("wallet connection failed, falling back to read-only")
	}

	client, url, chainID, failed, err := DialFirst(ctx, []string{cfg.Network.ReadOnlyRPCURL})
	if err != nil {
		return nil, fmt.Errorf("read-only endpoint unavailable: %w", err)
	}
	conn := &Connection{
		Client:     client,
		URL:        url,
		ChainID:    chainID,
		FailedRPCs: failed,
		Session:    models.Session{Connected: true, ReadOnly: true, RPCURL: url},
	}
	attachEventClient(ctx, cfg, conn)
	log.Info().Str("rpc", url).Msg("connected read-only")
	return conn, nil
}

func connectWallet(ctx context.Context, cfg config.Config, provider wallet.Provider) (*Connection, error) {
	accs, err := provider.RequestAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accs) == 0 {
		return nil, wallet.ErrNoAccounts
	}

	client, url, chainID, failed, err := DialFirst(ctx, cfg.WalletRPCURLs())
	if err != nil {
		return nil, err
	}
	if cfg.Network.ChainID != 0 && chainID.Cmp(big.NewInt(cfg.Network.ChainID)) != 0 {
		client.Close()
		return nil, fmt.Errorf("%w: got chain %s, want %d", ErrWrongNetwork, chainID, cfg.Network.ChainID)
	}

	log.Info().Str("rpc", url).Str("account", accs[0].Hex()).Msg("wallet connected")
	return &Connection{
		Client:     client,
		URL:        url,
		ChainID:    chainID,
		Provider:   provider,
		FailedRPCs: failed,
		Session: models.Session{
			Account:    accs[0],
			HasAccount: true,
			Connected:  true,
			RPCURL:     url,
		},
	}, nil
}

func attachEventClient(ctx context.Context, cfg config.Config, conn *Connection) {
	conn.EventClient = conn.Client
	if cfg.Network.WSURL == "" {
		return
	}
	dialCtx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()
	ws, err := ethclient.DialContext(dialCtx, cfg.Network.WSURL)
	if err != nil {
		log.Warn().Err(err).Str("ws", cfg.Network.WSURL).Msg("websocket endpoint unavailable, events will be polled")
		return
	}
	conn.EventClient = ws
}

// FetchEthPrice reads the ETH/USD quote from a Binance-style avgPrice endpoint.
func FetchEthPrice(ctx context.Context, url string) (models.PriceData, error) {
	client := &http.Client{Timeout: PriceTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.PriceData{Err: err}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return models.PriceData{Err: err}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("price endpoint returned %s", resp.Status)
		return models.PriceData{Err: err}, err
	}

	var result struct {
		Price json.Number `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.PriceData{Err: err}, err
	}
	price := strings.TrimSpace(result.Price.String())
	if price == "" {
		err := errors.New("price endpoint returned no price")
		return models.PriceData{Err: err}, err
	}
	return models.PriceData{Price: price}, nil
}

// CheckRPC dials url and reports its chain id and whether the contract
// has code there.
func CheckRPC(ctx context.Context, url string, contract common.Address) models.RPCResult {
	res := models.RPCResult{URL: url}
	ctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
		return res
	}
	defer client.Close()

	id, err := client.ChainID(ctx)
	if err != nil {
		res.Status = "error"
		res.Error = fmt.Sprintf("Failed to get ChainID: %v", err)
		return res
	}
	res.ChainID = id.Int64()

	code, err := client.CodeAt(ctx, contract, nil)
	if err != nil {
		res.Status = "error"
		res.Error = fmt.Sprintf("Failed to get contract code: %v", err)
		return res
	}
	res.ContractCode = len(code) > 0
	res.Status = "ok"
	return res
}
