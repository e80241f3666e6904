// AngelaMos | 2026
// dto.go

package admin

import "errors"

var errNoTierCounter = errors.New("subscription counts not configured")

type SystemStatsResponse struct {
	Database        DatabaseStatus     `json:"database"`
	Redis           RedisStatus        `json:"redis"`
	Runtime         RuntimeStats       `json:"runtime"`
	Subscriptions   *SubscriptionStats `json:"subscriptions,omitempty"`
	RealtimeClients *int               `json:"realtime_clients,omitempty"`
}

type DatabaseStatus struct {
	Healthy bool         `json:"healthy"`
	Stats   *DBPoolStats `json:"stats,omitempty"`
}

type RedisStatus struct {
	Healthy bool            `json:"healthy"`
	Stats   *RedisPoolStats `json:"stats,omitempty"`
}

type SubscriptionStats struct {
	Total   int `json:"total"`
	Free    int `json:"free"`
	Weekly  int `json:"weekly"`
	Monthly int `json:"monthly"`
	Paid    int `json:"paid"`
}

type DBPoolStats struct {
	MaxOpenConnections int    `json:"max_open_connections"`
	OpenConnections    int    `json:"open_connections"`
	InUse              int    `json:"in_use"`
	Idle               int    `json:"idle"`
	WaitCount          int64  `json:"wait_count"`
	WaitDuration       string `json:"wait_duration"`
	MaxIdleClosed      int64  `json:"max_idle_closed"`
	MaxLifetimeClosed  int64  `json:"max_lifetime_closed"`
}

type RedisPoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
	StaleConns uint32 `json:"stale_conns"`
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	MemSys       uint64 `json:"mem_sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}
