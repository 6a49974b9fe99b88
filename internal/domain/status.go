package domain

import "time"

type QueueDepth struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// EngineStatus is the operational snapshot served on the status route.
type EngineStatus struct {
	QueueName       string      `json:"queue_name"`
	Queue           *QueueDepth `json:"queue,omitempty"`
	DatabaseHealthy bool        `json:"database_healthy"`
	RedisHealthy    bool        `json:"redis_healthy"`
	EventsConnected bool        `json:"events_connected"`
	ServerTime      time.Time   `json:"server_time"`
}

func (s EngineStatus) Healthy() bool {
	return s.DatabaseHealthy && s.RedisHealthy
}
