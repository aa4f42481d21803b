package jobs

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// TokenCleaner deletes refresh and reset tokens that can no longer be used
type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// LimiterCleaner forgets rate limiters that have been idle too long
type LimiterCleaner interface {
	Cleanup(maxIdle time.Duration) int
}

// CleanupJob periodically purges expired credentials and idle rate limiters
type CleanupJob struct {
	tokens   TokenCleaner
	limiters LimiterCleaner
	interval time.Duration
	maxIdle  time.Duration

	stopChan chan struct{}
	done     chan struct{}
	once     sync.Once
	started  atomic.Bool
}

// NewCleanupJob creates a new cleanup job. limiters may be nil.
func NewCleanupJob(tokens TokenCleaner, limiters LimiterCleaner, interval time.Duration) *CleanupJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupJob{
		tokens:   tokens,
		limiters: limiters,
		interval: interval,
		maxIdle:  interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the cleanup job
func (j *CleanupJob) Start() {
	if !j.started.CompareAndSwap(false, true) {
		return
	}
	go j.run()
	log.Printf("🚀 Cleanup job started (every %v)", j.interval)
}

// Stop stops the cleanup job and waits for an in-flight run to finish
func (j *CleanupJob) Stop() {
	j.once.Do(func() {
		close(j.stopChan)
		if j.started.Load() {
			<-j.done
		}
		log.Println("🛑 Cleanup job stopped")
	})
}

func (j *CleanupJob) run() {
	defer close(j.done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.RunOnce(context.Background())
		case <-j.stopChan:
			return
		}
	}
}

// RunOnce performs a single cleanup pass
func (j *CleanupJob) RunOnce(ctx context.Context) {
	removed, err := j.tokens.CleanupExpiredTokens(ctx)
	if err != nil {
		log.Printf("❌ Error cleaning up tokens: %v", err)
	} else if removed > 0 {
		log.Printf("🧹 Removed %d expired or revoked tokens", removed)
	}

	if j.limiters != nil {
		if n := j.limiters.Cleanup(j.maxIdle); n > 0 {
			log.Printf("🧹 Dropped %d idle rate limiters", n)
		}
	}
}
