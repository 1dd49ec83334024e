package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"argufight-arena/services"
	"argufight-arena/utils"
)

// Purchase is a completed coin purchase reported by the payment service.
type Purchase struct {
	PaymentID   string    `json:"payment_id"`
	UserID      string    `json:"user_id"`
	Coins       int64     `json:"coins"`
	Status      string    `json:"status"`
	CompletedAt time.Time `json:"completed_at"`
}

// PurchaseSyncClient turns completed payments into COIN_PURCHASE ledger credits.
type PurchaseSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Ledger     *services.LedgerService
}

func NewPurchaseSyncClient(baseURL, token string, ledger *services.LedgerService) *PurchaseSyncClient {
	return &PurchaseSyncClient{
		BaseURL:    baseURL,
		Token:      token,
		Ledger:     ledger,
		HTTPClient: utils.SyncHTTPClient,
	}
}

func (c *PurchaseSyncClient) GetCompletedPurchases(ctx context.Context, since time.Time) ([]Purchase, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	u = u.JoinPath("/api/v1/public/coin-purchases")
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	q.Set("status", "completed")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call payment service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("payment service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Purchases []Purchase `json:"purchases"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode payment service response: %w", err)
	}
	return response.Purchases, nil
}

// Credit applies each purchase once. Replays of an already credited payment are skipped.
func (c *PurchaseSyncClient) Credit(ctx context.Context, purchases []Purchase) (int, error) {
	credited := 0
	for _, p := range purchases {
		if p.Status != "" && p.Status != "completed" {
			continue
		}
		entry, created, err := c.Ledger.CreditPurchase(ctx, p.UserID, p.PaymentID, p.Coins)
		if err != nil {
			return credited, fmt.Errorf("failed to credit payment %s: %w", p.PaymentID, err)
		}
		if created {
			credited++
			log.Printf("💰 [PURCHASES] Credited %d coins to %s (payment %s, balance %d)", p.Coins, p.UserID, p.PaymentID, entry.BalanceAfter)
		}
	}
	return credited, nil
}

// PollPurchases credits new purchases every pollInterval until ctx is done.
func PollPurchases(ctx context.Context, client *PurchaseSyncClient, pollInterval time.Duration) {
	log.Println("Starting coin purchase polling...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Coin purchase polling stopped.")
			return
		case <-ticker.C:
			pollTime := time.Now().UTC()
			purchases, err := client.GetCompletedPurchases(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ [PURCHASES] Error polling purchases: %v", err)
				continue
			}
			if len(purchases) == 0 {
				lastSyncTime = pollTime
				continue
			}
			if _, err := client.Credit(ctx, purchases); err != nil {
				// Keep the window; crediting is idempotent on the payment id.
				log.Printf("❌ [PURCHASES] %v", err)
				continue
			}
			lastSyncTime = pollTime
		}
	}
}
