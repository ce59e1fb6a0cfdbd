// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingest

import (
	"log/slog"
	"sync"
	"time"
)

// progressTracker logs loading throughput every reportInterval rows.
type progressTracker struct {
	logger         *slog.Logger
	collection     string
	current        int64
	reportInterval int64
	lastReported   int64
	startTime      time.Time
	mu             sync.Mutex
}

// newProgressTracker creates a tracker. A reportInterval of 0 disables
// intermediate reports.
func newProgressTracker(logger *slog.Logger, collection string, reportInterval int) *progressTracker {
	return &progressTracker{
		logger:         logger,
		collection:     collection,
		reportInterval: int64(reportInterval),
		startTime:      time.Now(),
	}
}

// Increment adds delta completed rows.
func (p *progressTracker) Increment(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current += int64(delta)
	if p.reportInterval > 0 && p.current-p.lastReported >= p.reportInterval {
		p.report("bulk progress")
		p.lastReported = p.current
	}
}

// Finish logs the final count.
func (p *progressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.report("bulk load finished")
}

// Elapsed returns the time since the tracker was created.
func (p *progressTracker) Elapsed() time.Duration {
	return time.Since(p.startTime)
}

// report logs the current progress. Must be called with lock held.
func (p *progressTracker) report(msg string) {
	elapsed := time.Since(p.startTime)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.current) / elapsed.Seconds()
	}
	p.logger.Info(msg, "collection", p.collection, "rows", p.current,
		"rowsPerSecond", rate, "elapsed", elapsed.Round(time.Millisecond))
}
