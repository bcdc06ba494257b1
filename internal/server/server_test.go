package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/config"
	"github.com/congo-pay/wallet_ledger/internal/logging"
)

func TestServerRendersJSONErrors(t *testing.T) {
	srv, err := New(config.Config{AppEnv: "test", Port: "0", MaxWalletBalance: 100}, nil, nil, logging.Discard())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	resp, err := srv.App().Test(httptest.NewRequest(fiber.MethodGet, "/wallets/unknown/balance", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "wallet does not exist" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestServerRequiresDatabaseInProduction(t *testing.T) {
	if _, err := New(config.Config{AppEnv: "production"}, nil, nil, logging.Discard()); err == nil {
		t.Fatal("expected error without database")
	}
}
