package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pump-graduates/internal/domain"
)

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0"},
		{999, "$999"},
		{50000, "$50,000"},
		{1234567, "$1,234,567"},
		{50000.49, "$50,000"},
		{-2500, "-$2,500"},
	}
	for _, tt := range tests {
		if got := FormatUSD(tt.in); got != tt.want {
			t.Errorf("FormatUSD(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatMessage_FullRecord(t *testing.T) {
	name := "Foo Token"
	symbol := "FOO"
	price := 0.01
	marketCap := 50000.0
	liquidity := 25000.0
	volume := 80000.0
	url := "https://dexscreener.com/solana/pair1"

	msg := FormatMessage(&domain.Graduate{
		Mint:         "ABC123",
		Name:         &name,
		Symbol:       &symbol,
		Dex:          "raydium",
		PriceUsd:     &price,
		MarketCap:    &marketCap,
		LiquidityUsd: &liquidity,
		Stats:        &domain.TradingStats{VolumeH24: &volume},
		URL:          &url,
	})

	for _, want := range []string{
		"FOO (Foo Token)",
		"graduated to raydium",
		"Mint: ABC123",
		"$0.01000000",
		"Market cap: $50,000",
		"Liquidity: $25,000",
		"24h volume: $80,000",
		url,
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatMessage_SparseRecord(t *testing.T) {
	// Enrichment never ran: only draft fields present.
	msg := FormatMessage(&domain.Graduate{
		Mint: "ABC123",
		Dex:  "pumpswap",
	})

	if !strings.Contains(msg, "ABC123 graduated to pumpswap") {
		t.Errorf("unexpected title line:\n%s", msg)
	}
	for _, absent := range []string{"Price:", "Market cap:", "Liquidity:", "24h volume:"} {
		if strings.Contains(msg, absent) {
			t.Errorf("message should omit %q for a sparse record:\n%s", absent, msg)
		}
	}
}

func TestTelegramNotifier_Notify(t *testing.T) {
	var got sendMessageRequest
	var path string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	symbol := "FOO"
	marketCap := 50000.0
	n := NewTelegramNotifier("token123", "chat456", WithTelegramAPIBase(server.URL))
	err := n.Notify(context.Background(), &domain.Graduate{
		Mint:      "ABC123",
		Symbol:    &symbol,
		Dex:       "raydium",
		MarketCap: &marketCap,
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if path != "/bottoken123/sendMessage" {
		t.Errorf("path = %q", path)
	}
	if got.ChatID != "chat456" {
		t.Errorf("chat_id = %q", got.ChatID)
	}
	if !strings.Contains(got.Text, "FOO") || !strings.Contains(got.Text, "$50,000") {
		t.Errorf("text = %q", got.Text)
	}
	if !got.DisableWebPagePreview {
		t.Error("web page preview should be disabled")
	}
}

func TestTelegramNotifier_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusBadRequest)
	}))
	defer server.Close()

	n := NewTelegramNotifier("token", "chat", WithTelegramAPIBase(server.URL))
	if err := n.Notify(context.Background(), &domain.Graduate{Mint: "ABC123"}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
