// workers/profile_sync_worker.go
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

	"argufight-arena/models"
	"argufight-arena/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteProfile is one changed account from the identity sync service.
type RemoteProfile struct {
	ID            string    `json:"external_id"`
	Username      string    `json:"username"`
	AccountStatus string    `json:"account_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// ProfileSyncWorker mirrors usernames and ban status from the identity provider
// into users. It never touches coins or ratings.
type ProfileSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8500"
	endpointPath string // e.g., "/api/v1/public/profiles"
	serviceToken string
	httpClient   *http.Client
}

func NewProfileSyncWorker(db *gorm.DB, syncServiceBaseURL, endpointPath, serviceToken string) *ProfileSyncWorker {
	return &ProfileSyncWorker{
		db:           db,
		interval:     1 * time.Minute,
		baseURL:      syncServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.SyncHTTPClient,
	}
}

func (w *ProfileSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Profile Sync Worker (sync-service → users)…")
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	since, err := w.SyncOnce(ctx, time.Time{})
	if err != nil {
		log.Printf("⚠️ [SYNC] Initial sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			next, err := w.SyncOnce(ctx, since)
			if err != nil {
				log.Printf("❌ [SYNC] Sync batch failed: %v", err)
				continue
			}
			since = next
		case <-ctx.Done():
			log.Println("⏹️ Profile Sync Worker stopped")
			return
		}
	}
}

// SyncOnce pulls profiles changed since the cursor and returns the next cursor.
func (w *ProfileSyncWorker) SyncOnce(ctx context.Context, since time.Time) (time.Time, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return since, fmt.Errorf("invalid sync service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL.String(), nil)
	if err != nil {
		return since, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return since, fmt.Errorf("HTTP request to sync service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return since, fmt.Errorf("sync service non-200 response: %d — %s", resp.StatusCode, string(body))
	}

	var response profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return since, fmt.Errorf("failed to decode sync service response: %w", err)
	}
	if len(response.Users) == 0 {
		return since, nil
	}

	next := since
	var upserted, failed int
	for _, remote := range response.Users {
		if remote.ID == "" {
			continue
		}
		user := models.User{
			ID:        remote.ID,
			Username:  remote.Username,
			EloRating: models.DefaultEloRating,
			IsBanned:  remote.AccountStatus == "suspended" || remote.AccountStatus == "banned",
		}
		if err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "is_banned"}),
		}).Create(&user).Error; err != nil {
			failed++
			log.Printf("[SYNC] ⚠️ Failed to upsert user %q (%s): %v", remote.ID, remote.Username, err)
			continue
		}
		upserted++
		if remote.UpdatedAt.After(next) {
			next = remote.UpdatedAt
		}
	}

	log.Printf("[SYNC] ✅ Synced %d profile(s) (%d upserted, %d errors)", len(response.Users), upserted, failed)
	if failed > 0 {
		// Retry the whole window next tick.
		return since, nil
	}
	return next, nil
}
