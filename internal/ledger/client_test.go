package ledger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func commandServer(t *testing.T, handle func(command string) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		command := strings.TrimPrefix(r.URL.Path, "/")
		w.Write([]byte(handle(command)))
	}))
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(Config{RPCURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestCommand_ErrorEnvelope(t *testing.T) {
	srv := commandServer(t, func(command string) string {
		return `{"status":false,"error":"unknown command"}`
	})
	defer srv.Close()

	client := newTestClient(t, srv)
	_, err := client.Command(context.Background(), "bogus")

	var cerr *CommandError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *CommandError, got %v", err)
	}
	if cerr.Command != "bogus" || cerr.Message != "unknown command" {
		t.Fatalf("error fields wrong: %+v", cerr)
	}
}

func TestCoins_DecodesStateSlots(t *testing.T) {
	srv := commandServer(t, func(command string) string {
		if command != "coins relevant:false" {
			t.Fatalf("unexpected command: %q", command)
		}
		return `{"status":true,"response":[
			{"coinid":"0x01","address":"0xA","amount":"0.01","state":[{"port":0,"type":0,"data":"{\"type\":\"dapp\"}"}]},
			{"coinid":"0x02","address":"0xB","amount":"5"}
		]}`
	})
	defer srv.Close()

	client := newTestClient(t, srv)
	coins, err := client.Coins(context.Background())
	if err != nil {
		t.Fatalf("coins: %v", err)
	}
	if len(coins) != 2 {
		t.Fatalf("expected 2 coins, got %d", len(coins))
	}
	if coins[0].StateAt(0) != `{"type":"dapp"}` {
		t.Fatalf("state slot not decoded: %q", coins[0].StateAt(0))
	}
	if coins[1].StateAt(0) != "" {
		t.Fatalf("absent slot should be empty")
	}
}

func TestSend_BuildsCommandWithState(t *testing.T) {
	var got string
	srv := commandServer(t, func(command string) string {
		got = command
		return `{"status":true,"response":{"txpowid":"0xTX9"}}`
	})
	defer srv.Close()

	client := newTestClient(t, srv)
	txID, err := client.Send(context.Background(), "0.01", "0xTREASURY", map[string]string{"0": `{"type":"dapp"}`})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if txID != "0xTX9" {
		t.Fatalf("txid wrong: %s", txID)
	}
	if !strings.HasPrefix(got, "send amount:0.01 address:0xTREASURY state:") {
		t.Fatalf("command shape wrong: %q", got)
	}
	if !strings.Contains(got, `"0":"{\"type\":\"dapp\"}"`) {
		t.Fatalf("state not embedded: %q", got)
	}
}

func TestBalance(t *testing.T) {
	srv := commandServer(t, func(command string) string {
		return `{"status":true,"response":[{"tokenid":"0x00","confirmed":"10","sendable":"9.5"}]}`
	})
	defer srv.Close()

	client := newTestClient(t, srv)
	balance, err := client.Balance(context.Background())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Sendable != "9.5" {
		t.Fatalf("sendable wrong: %s", balance.Sendable)
	}
}
