package config

const (
	// TopicIndexSync is the NSQ topic for index synchronization jobs
	// (full rebuilds and incremental updates).
	TopicIndexSync = "index.sync"
)
