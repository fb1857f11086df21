package ledger

import (
	"encoding/json"
	"fmt"
)

// Response is the envelope every node command returns.
type Response struct {
	Command  string          `json:"command"`
	Status   bool            `json:"status"`
	Pending  bool            `json:"pending"`
	Response json.RawMessage `json:"response"`
	Error    string          `json:"error"`
}

// CommandError reports a command the node accepted but rejected.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed: %s", e.Command, e.Message)
}

// StateVariable is one slot of a coin's embedded state.
type StateVariable struct {
	Port int    `json:"port"`
	Type int    `json:"type"`
	Data string `json:"data"`
}

// Coin is a value-holding ledger record, optionally carrying embedded state.
type Coin struct {
	CoinID  string          `json:"coinid"`
	Address string          `json:"address"`
	Amount  string          `json:"amount"`
	TokenID string          `json:"tokenid"`
	Created string          `json:"created"`
	State   []StateVariable `json:"state"`
}

// StateAt returns the data stored at the given state slot, or "" when the
// slot is absent.
func (c Coin) StateAt(port int) string {
	for _, sv := range c.State {
		if sv.Port == port {
			return sv.Data
		}
	}
	return ""
}

// Balance describes the node wallet's spendable funds.
type Balance struct {
	TokenID     string `json:"tokenid"`
	Confirmed   string `json:"confirmed"`
	Unconfirmed string `json:"unconfirmed"`
	Sendable    string `json:"sendable"`
}

// Transaction summarises one historic transaction.
type Transaction struct {
	TxPowID   string `json:"txpowid"`
	Timestamp int64  `json:"timemilli"`
}

// SendResult is the response body of a send command.
type SendResult struct {
	TxPowID string `json:"txpowid"`
}
