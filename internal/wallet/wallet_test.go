package wallet

import (
	"errors"
	"net/http"
	"testing"
)

const validAddress = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		address    string
		blockchain string
		wantErr    error
		wantChain  string
	}{
		{name: "default chain", address: validAddress, wantChain: "solana"},
		{name: "explicit chain", address: "  " + validAddress + " ", blockchain: "Solana", wantChain: "solana"},
		{name: "empty", address: "", wantErr: ErrMissingAddress},
		{name: "not base58", address: "0OIl-not-an-address", wantErr: ErrInvalidSolanaWallet},
		{name: "wrong length", address: "abc", wantErr: ErrInvalidSolanaWallet},
		{name: "zero key", address: "11111111111111111111111111111111", wantErr: ErrInvalidSolanaWallet},
		{name: "unsupported chain", address: validAddress, blockchain: "eth", wantErr: ErrUnsupportedChain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := Parse(tt.address, tt.blockchain)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id.Address != validAddress || id.Blockchain != tt.wantChain {
				t.Fatalf("unexpected identity %+v", id)
			}
		})
	}
}

func TestApplyHeaders(t *testing.T) {
	id := Identity{Address: validAddress, Blockchain: "solana"}
	h := http.Header{}
	id.Apply(h)

	if got := h.Get(HeaderWallet); got != validAddress {
		t.Errorf("wallet header = %q", got)
	}
	if got := h.Get("X-Coinflow-Auth-Blockchain"); got != "solana" {
		t.Errorf("blockchain header = %q", got)
	}
}
