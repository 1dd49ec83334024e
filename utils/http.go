// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// SyncHTTPClient is shared by the workers that poll collaborator services.
var SyncHTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
