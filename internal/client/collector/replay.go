package collector

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/SofieTorch/cbba-mobility/internal/recording"
)

// ReplayFile is the on-disk shape a field capture is replayed from.
type ReplayFile struct {
	Points   []recording.LocationPointInput `json:"points"`
	Readings []recording.SensorReadingInput `json:"readings"`
}

// ReplaySource feeds a captured trip back through the collector in paced
// chunks, standing in for the platform location and motion services during
// development and tests.
type ReplaySource struct {
	file      ReplayFile
	chunkSize int
	interval  time.Duration
	emitting  sync.WaitGroup
}

func NewReplaySource(path string, chunkSize int, interval time.Duration) (*ReplaySource, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file ReplayFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return nil, err
	}
	if chunkSize <= 0 {
		chunkSize = 10
	}
	src := &ReplaySource{file: file, chunkSize: chunkSize, interval: interval}
	// Both streams must be consumed before Wait returns.
	src.emitting.Add(2)
	return src, nil
}

// Wait blocks until both streams have been fully delivered. The caller must
// have wired the source into a running collector first.
func (r *ReplaySource) Wait() {
	r.emitting.Wait()
}

func (r *ReplaySource) Locations() <-chan []recording.LocationPointInput {
	out := make(chan []recording.LocationPointInput)
	go func() {
		defer r.emitting.Done()
		defer close(out)
		for start := 0; start < len(r.file.Points); start += r.chunkSize {
			end := start + r.chunkSize
			if end > len(r.file.Points) {
				end = len(r.file.Points)
			}
			out <- r.file.Points[start:end]
			if r.interval > 0 {
				time.Sleep(r.interval)
			}
		}
	}()
	return out
}

func (r *ReplaySource) Sensors() <-chan []recording.SensorReadingInput {
	out := make(chan []recording.SensorReadingInput)
	go func() {
		defer r.emitting.Done()
		defer close(out)
		for start := 0; start < len(r.file.Readings); start += r.chunkSize {
			end := start + r.chunkSize
			if end > len(r.file.Readings) {
				end = len(r.file.Readings)
			}
			out <- r.file.Readings[start:end]
			if r.interval > 0 {
				time.Sleep(r.interval)
			}
		}
	}()
	return out
}
