package chainrpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNativeBalanceParsesResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Method != "getBalance" {
			t.Fatalf("expected getBalance, got %s", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":123456789}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	balance, err := c.NativeBalance(t.Context(), "somepubkey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 123456789 {
		t.Fatalf("expected 123456789, got %d", balance)
	}
}

func TestConfirmTransactionReportsFailureFromOnChainErr(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":[{"confirmationStatus":"confirmed","err":{"InstructionError":[0,"Custom"]}}]}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	_, err := c.ConfirmTransaction(t.Context(), "sig")
	if err == nil {
		t.Fatal("expected an error when the transaction's err field is non-nil")
	}
}

func TestConfirmTransactionPendingWhenNoStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":[null]}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	confirmed, err := c.ConfirmTransaction(t.Context(), "sig")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if confirmed {
		t.Fatal("expected not confirmed when status is null")
	}
}

func TestOnLogsDeliversNewSignaturesAndRemoveOnLogsStopsPolling(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":[{"signature":"sig-1"}]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	delivered := make(chan LogEvent, 10)
	handle := c.OnLogs("some-address", func(e LogEvent) { delivered <- e })

	select {
	case e := <-delivered:
		if e.Signature != "sig-1" {
			t.Fatalf("expected sig-1, got %s", e.Signature)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expected a log event to be delivered")
	}

	c.RemoveOnLogs(handle)
	c.RemoveOnLogs(handle) // idempotent
}
