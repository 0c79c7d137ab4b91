package client

import (
	"fmt"
	"time"
)

// Run is one row of GET /stats.
type Run struct {
	ID          int64     `json:"id"`
	StartDate   time.Time `json:"start_date"`
	PID         int       `json:"pid"`
	Duration    *int64    `json:"duration"`
	StartNumber int       `json:"start_number"`
}

// StatsQuery pages through /stats. Zero values use the server defaults.
type StatsQuery struct {
	Offset  int
	Limit   int
	OrderBy string // "asc" or "desc"
}

// APIError is returned for any non-2xx response.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("atom-robots api: status %d", e.Status)
	}
	return fmt.Sprintf("atom-robots api: status %d: %s", e.Status, e.Detail)
}

type messageResp struct {
	Message string `json:"message"`
}

type errorResp struct {
	Detail string `json:"detail"`
}
