package download

import (
	"sync"
	"time"

	"github.com/gammazero/deque"

	"github.com/surge-downloader/sdm/internal/engine/types"
)

// ETAUnknown is returned by ETA when no estimate can be made
const ETAUnknown = -1.0

type speedSample struct {
	at    time.Time
	bytes int64
}

// speedWindow keeps (time, cumulative bytes) samples no older than
// types.SpeedWindow relative to the newest sample
type speedWindow struct {
	mu      sync.Mutex
	samples deque.Deque[speedSample]
}

func (w *speedWindow) record(at time.Time, bytes int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples.PushBack(speedSample{at: at, bytes: bytes})
	for w.samples.Len() > 1 && at.Sub(w.samples.Front().at) > types.SpeedWindow {
		w.samples.PopFront()
	}
}

// deltas returns elapsed seconds and bytes between the oldest and newest
// retained samples; ok is false with fewer than two samples
func (w *speedWindow) deltas() (dt float64, db float64, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.samples.Len() < 2 {
		return 0, 0, false
	}
	first, last := w.samples.Front(), w.samples.Back()
	return last.at.Sub(first.at).Seconds(), float64(last.bytes - first.bytes), true
}

func (w *speedWindow) reset() {
	w.mu.Lock()
	w.samples.Clear()
	w.mu.Unlock()
}

// rate returns bytes per second over the retained window, 0 when unknown
func (w *speedWindow) rate() float64 {
	dt, db, ok := w.deltas()
	if !ok || dt <= 0 || db <= 0 {
		return 0
	}
	return db / dt
}
