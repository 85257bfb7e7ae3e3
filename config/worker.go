package config

import "time"

// WorkerConfig contains configuration for the background analysis worker pool.
type WorkerConfig struct {
	// Concurrency is the number of pipeline worker goroutines.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"4"`

	// QueueDepth is the number of pending pipelines the pool buffers before
	// Start calls are rejected with a failed job.
	QueueDepth int `env:"WORKER_QUEUE_DEPTH" envDefault:"64"`

	// ShutdownGrace bounds the drain period on shutdown.
	ShutdownGrace time.Duration `env:"WORKER_SHUTDOWN_GRACE" envDefault:"30s"`
}

// Sanitize applies guardrails to worker pool configuration values.
func (c *WorkerConfig) Sanitize() {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.QueueDepth < 1 {
		c.QueueDepth = 1
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 30 * time.Second
	}
}
