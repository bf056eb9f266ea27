// ABOUTME: Server clock estimation from timestamped request/response exchanges
// ABOUTME: Tracks offset and drift so round start times map onto the local clock
package clocksync

import (
	"log"
	"sync"
	"time"
)

// Quality represents sync quality
type Quality int

const (
	QualityLost Quality = iota
	QualityDegraded
	QualityGood
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDegraded:
		return "degraded"
	default:
		return "lost"
	}
}

const (
	// samples slower than this are network noise once an estimate exists
	maxRTT = 500 * time.Millisecond
	// residuals beyond this look like a clock jump and restart the estimate
	maxResidual = 250 * time.Millisecond
	goodRTT     = 100 * time.Millisecond
	staleAfter  = 30 * time.Second
)

// Estimator keeps a running estimate of server time minus local time.
// All timestamps are unix microseconds.
type Estimator struct {
	mu            sync.RWMutex
	offset        int64   // server - local, µs
	drift         float64 // µs of offset change per local µs
	rtt           int64
	lastSample    int64 // local µs of the last accepted sample
	lastSync      time.Time
	samples       int
	quality       Quality
	smoothingRate float64
}

// New creates an estimator with no samples
func New() *Estimator {
	return &Estimator{
		smoothingRate: 0.1,
		quality:       QualityLost,
	}
}

// Measure computes round trip and offset of one exchange: t1 client send,
// t2 server receive, t3 server send, t4 client receive.
func Measure(t1, t2, t3, t4 int64) (rtt, offset int64) {
	rtt = (t4 - t1) - (t3 - t2)
	offset = ((t2 - t1) + (t3 - t4)) / 2
	return
}

// Add folds one exchange into the estimate and reports whether it was kept
func (e *Estimator) Add(t1, t2, t3, t4 int64) bool {
	rtt, measured := Measure(t1, t2, t3, t4)

	e.mu.Lock()
	defer e.mu.Unlock()

	if rtt < 0 {
		return false
	}
	if e.samples > 0 && rtt > maxRTT.Microseconds() {
		log.Printf("Discarding clock sample: high RTT %dµs", rtt)
		return false
	}

	switch e.samples {
	case 0:
		e.offset = measured
	case 1:
		if dt := float64(t4 - e.lastSample); dt > 0 {
			e.drift = float64(measured-e.offset) / dt
		}
		e.offset = measured
	default:
		dt := float64(t4 - e.lastSample)
		if dt <= 0 {
			return false
		}
		predicted := e.offset + int64(e.drift*dt)
		residual := measured - predicted
		if residual > maxResidual.Microseconds() || residual < -maxResidual.Microseconds() {
			log.Printf("Clock jump of %dµs, restarting estimate", residual)
			e.offset = measured
			e.drift = 0
			e.samples = 1
			e.record(rtt, t4)
			return true
		}
		e.offset = predicted + int64(e.smoothingRate*float64(residual))
		e.drift += e.smoothingRate * float64(residual) / dt
	}

	e.samples++
	e.record(rtt, t4)
	if e.samples <= 3 {
		log.Printf("Clock sample #%d: offset=%dµs rtt=%dµs", e.samples, e.offset, rtt)
	}
	return true
}

func (e *Estimator) record(rtt, at int64) {
	e.rtt = rtt
	e.lastSample = at
	e.lastSync = time.Now()
	if rtt < goodRTT.Microseconds() {
		e.quality = QualityGood
	} else {
		e.quality = QualityDegraded
	}
}

// Offset returns server time minus local time at local instant now
func (e *Estimator) Offset(now time.Time) time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.samples == 0 {
		return 0
	}
	dt := now.UnixMicro() - e.lastSample
	return time.Duration(e.offset+int64(e.drift*float64(dt))) * time.Microsecond
}

// ToLocal maps a server instant onto the local clock
func (e *Estimator) ToLocal(server time.Time) time.Time {
	return server.Add(-e.Offset(server))
}

// Stats returns the latest offset, round trip and quality
func (e *Estimator) Stats() (offset, rtt time.Duration, quality Quality) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return time.Duration(e.offset) * time.Microsecond, time.Duration(e.rtt) * time.Microsecond, e.quality
}

// CheckQuality downgrades to lost when no sample arrived recently
func (e *Estimator) CheckQuality() Quality {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.samples > 0 && time.Since(e.lastSync) > staleAfter {
		e.quality = QualityLost
	}
	return e.quality
}

// Synced reports whether at least one sample was accepted
func (e *Estimator) Synced() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.samples > 0
}
