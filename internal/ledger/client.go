// Package ledger provides the command/response client for the external node
// process. The node speaks a textual command protocol; every call posts one
// command string and decodes the standard response envelope.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client issues commands against a node's RPC endpoint.
type Client struct {
	rpcURL     string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	RPCURL  string
	Timeout time.Duration
}

// NewClient creates a node command client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		rpcURL: strings.TrimRight(cfg.RPCURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Command posts one command string to the node and returns the raw response
// payload. A transport failure or a status:false envelope is an error.
func (c *Client) Command(ctx context.Context, command string) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.rpcURL+"/"+url.PathEscape(command), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute command: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var envelope Response
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if !envelope.Status {
		return nil, &CommandError{Command: firstWord(command), Message: envelope.Error}
	}
	return envelope.Response, nil
}

// Coins returns every ledger-tracked value-holding record, not just those
// relevant to the local wallet.
func (c *Client) Coins(ctx context.Context) ([]Coin, error) {
	result, err := c.Command(ctx, "coins relevant:false")
	if err != nil {
		return nil, err
	}

	var coins []Coin
	if err := json.Unmarshal(result, &coins); err != nil {
		return nil, fmt.Errorf("unmarshal coins: %w", err)
	}
	return coins, nil
}

// Balance returns the wallet's base-token balance.
func (c *Client) Balance(ctx context.Context) (Balance, error) {
	result, err := c.Command(ctx, "balance")
	if err != nil {
		return Balance{}, err
	}

	var balances []Balance
	if err := json.Unmarshal(result, &balances); err != nil {
		return Balance{}, fmt.Errorf("unmarshal balance: %w", err)
	}
	if len(balances) == 0 {
		return Balance{}, fmt.Errorf("empty balance response")
	}
	return balances[0], nil
}

// GetAddress returns an address owned by the node wallet.
func (c *Client) GetAddress(ctx context.Context) (string, error) {
	result, err := c.Command(ctx, "getaddress")
	if err != nil {
		return "", err
	}

	var payload struct {
		Address string `json:"miniaddress"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return "", fmt.Errorf("unmarshal address: %w", err)
	}
	return payload.Address, nil
}

// Send transfers amount to address with the given state slots embedded in the
// transaction. It returns the transaction identifier.
func (c *Client) Send(ctx context.Context, amount, address string, state map[string]string) (string, error) {
	cmd := fmt.Sprintf("send amount:%s address:%s", amount, address)
	if len(state) > 0 {
		encoded, err := json.Marshal(state)
		if err != nil {
			return "", fmt.Errorf("encode state: %w", err)
		}
		cmd += " state:" + string(encoded)
	}

	result, err := c.Command(ctx, cmd)
	if err != nil {
		return "", err
	}

	var sent SendResult
	if err := json.Unmarshal(result, &sent); err != nil {
		return "", fmt.Errorf("unmarshal send result: %w", err)
	}
	return sent.TxPowID, nil
}

// History returns up to max recent transactions.
func (c *Client) History(ctx context.Context, max int) ([]Transaction, error) {
	result, err := c.Command(ctx, "history max:"+strconv.Itoa(max))
	if err != nil {
		return nil, err
	}

	var payload struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	return payload.Transactions, nil
}

func firstWord(command string) string {
	if i := strings.IndexByte(command, ' '); i > 0 {
		return command[:i]
	}
	return command
}
