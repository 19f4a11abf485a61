// Command cardpay drives one checkout against a running server: it opens a
// session for a Solana wallet and submits a sandbox card token.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/CedrosPay/cardcheckout/internal/checkout"
	"github.com/CedrosPay/cardcheckout/internal/tokenization"
)

type sessionResponse struct {
	SessionID string `json:"sessionId"`
	checkout.View
}

func main() {
	var (
		serverURL = flag.String("server", "http://localhost:8080", "checkout server base URL (including route prefix)")
		keypair   = flag.String("keypair", "", "path to Solana keypair (JSON produced by solana-keygen); a random wallet is used when empty")
		subtotal  = flag.Int64("subtotal", 1000, "order subtotal in cents")
		token     = flag.String("token", "4242424242424242", "sandbox card token returned by the card iframe")
		expiry    = flag.String("expiry", "12/30", "card expiry MM/YY")
		name      = flag.String("name", "Test Buyer", "cardholder name")
		email     = flag.String("email", "buyer@example.com", "billing email")
		saved     = flag.String("saved", "", "charge this saved card id instead of a new card (token is used as the CVV token)")
		submit    = flag.Bool("submit", true, "submit the payment after opening the session")
	)
	flag.Parse()

	walletKey := loadWallet(*keypair)
	baseURL := strings.TrimRight(*serverURL, "/")
	client := &http.Client{Timeout: 60 * time.Second}

	var session sessionResponse
	status, err := call(client, http.MethodPost, baseURL+"/checkout/v1/sessions", walletKey, "", map[string]any{
		"wallet":   walletKey,
		"subtotal": checkout.Subtotal{Cents: *subtotal},
	}, &session)
	if err != nil {
		log.Fatalf("create session: %v", err)
	}
	if status != http.StatusCreated {
		log.Fatalf("create session: unexpected status %d", status)
	}
	log.Printf("session %s: subtotal=%d fees=%d total=%d (fallback=%v)",
		session.SessionID, session.Totals.Subtotal, session.Totals.Fees, session.Totals.Total, session.Totals.FeeFallback)
	for _, c := range session.SavedCards {
		log.Printf("  saved card %s: %s ending %s (%s/%s)", c.ID, c.CardType, c.Last4, c.ExpMonth, c.ExpYear)
	}

	if !*submit {
		return
	}

	sessionURL := baseURL + "/checkout/v1/sessions/" + session.SessionID
	body := map[string]any{
		"mode":  "new",
		"token": tokenization.Token{Token: *token},
	}
	if *saved != "" {
		if _, err := call(client, http.MethodPost, sessionURL+"/cards/"+*saved+"/select", walletKey, "", nil, nil); err != nil {
			log.Fatalf("select card: %v", err)
		}
		body["mode"] = "saved"
	} else {
		body["expiry"] = *expiry
		body["billing"] = checkout.BillingInfo{
			Name:    *name,
			Email:   *email,
			Address: "1 Test Street",
			City:    "Austin",
			State:   "Texas",
			Zip:     "73301",
			Country: "US",
		}
	}

	var result json.RawMessage
	status, err = call(client, http.MethodPost, sessionURL+"/submit", walletKey, uuid.NewString(), body, &result)
	if err != nil {
		log.Fatalf("submit: %v", err)
	}
	log.Printf("submit: HTTP %d", status)
	fmt.Println(string(result))
	if status >= 400 {
		os.Exit(1)
	}
}

func loadWallet(path string) string {
	if path == "" {
		key, err := solana.NewRandomPrivateKey()
		if err != nil {
			log.Fatalf("generate wallet: %v", err)
		}
		log.Printf("using random wallet %s", key.PublicKey())
		return key.PublicKey().String()
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		log.Fatalf("load keypair: %v", err)
	}
	return key.PublicKey().String()
}

func call(client *http.Client, method, url, walletAddr, idempotencyKey string, body, dest any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Wallet", walletAddr)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, err
	}
	if dest != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, dest); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", resp.Status, err)
		}
	}
	return resp.StatusCode, nil
}
