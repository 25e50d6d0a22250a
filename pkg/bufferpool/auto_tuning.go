package bufferpool

import (
	"time"

	"github.com/cydb/storage/internal/cydblog"
)

// autoTuneMinPercent/autoTuneMaxPercent bound the range auto-tuning
// may move old_block_percent within, grounded on
// buffer_pool/auto_tuning.go's bounded-adjustment approach.
const (
	autoTuneMinPercent = 10
	autoTuneMaxPercent = 60
	autoTuneStep       = 2
)

// EnableAutoTuning starts a background goroutine that samples each
// segment's hit rate every interval and nudges old_block_percent
// within [10, 60]: a falling hit rate grows the old region (more
// candidates survive the scan-resistant screen before being trusted),
// a rising hit rate shrinks it back toward the young region, and an
// unchanged rate leaves it as is. It
// is disabled by default so the deterministic §8 scenarios are not
// disturbed; call the returned stop func to end it.
func (p *Pool) EnableAutoTuning(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		log := cydblog.For("bufferpool")
		var lastRates []float64
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if lastRates == nil {
					lastRates = make([]float64, len(p.shards))
				}
				for i, s := range p.shards {
					s.mu.Lock()
					total := s.hits + s.misses
					var rate float64
					if total > 0 {
						rate = float64(s.hits) / float64(total)
					}
					if rate < lastRates[i] && s.oldBlockPercent+autoTuneStep <= autoTuneMaxPercent {
						s.oldBlockPercent += autoTuneStep
						log.Debugf("bufferpool segment %d: hit rate fell, old_block_percent -> %d", i, s.oldBlockPercent)
					} else if rate > lastRates[i] && s.oldBlockPercent-autoTuneStep >= autoTuneMinPercent {
						s.oldBlockPercent -= autoTuneStep
					}
					lastRates[i] = rate
					s.mu.Unlock()
				}
			}
		}
	}()
	return func() { close(done) }
}
