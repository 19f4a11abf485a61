// Package wallet validates paying wallets and renders the processor's
// wallet identity headers.
package wallet

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Identity header names expected by the card processor.
const (
	HeaderWallet     = "x-coinflow-auth-wallet"
	HeaderBlockchain = "x-coinflow-auth-blockchain"
)

// BlockchainSolana is the default chain.
const BlockchainSolana = "solana"

var (
	ErrMissingAddress      = errors.New("wallet address is required")
	ErrUnsupportedChain    = errors.New("unsupported blockchain")
	ErrInvalidSolanaWallet = errors.New("invalid solana wallet address")
)

// Identity is a connected wallet on a specific chain.
type Identity struct {
	Address    string `json:"wallet"`
	Blockchain string `json:"blockchain"`
}

// Parse validates address for blockchain (defaulting to solana) and returns
// the normalized identity.
func Parse(address, blockchain string) (Identity, error) {
	address = strings.TrimSpace(address)
	blockchain = strings.ToLower(strings.TrimSpace(blockchain))
	if blockchain == "" {
		blockchain = BlockchainSolana
	}
	if address == "" {
		return Identity{}, ErrMissingAddress
	}

	switch blockchain {
	case BlockchainSolana:
		pk, err := solana.PublicKeyFromBase58(address)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %v", ErrInvalidSolanaWallet, err)
		}
		if pk.IsZero() {
			return Identity{}, ErrInvalidSolanaWallet
		}
		return Identity{Address: pk.String(), Blockchain: blockchain}, nil
	default:
		return Identity{}, fmt.Errorf("%w: %s", ErrUnsupportedChain, blockchain)
	}
}

// Headers returns the identity headers as a map.
func (id Identity) Headers() map[string]string {
	return map[string]string{
		HeaderWallet:     id.Address,
		HeaderBlockchain: id.Blockchain,
	}
}

// Apply sets the identity headers on h.
func (id Identity) Apply(h http.Header) {
	for k, v := range id.Headers() {
		h.Set(k, v)
	}
}
