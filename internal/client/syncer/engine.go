package syncer

import (
	"context"
	"log"
	"sync"

	"github.com/SofieTorch/cbba-mobility/internal/client/api"
	"github.com/SofieTorch/cbba-mobility/internal/client/store"
	"github.com/SofieTorch/cbba-mobility/internal/recording"
)

// LocalStore is the slice of the device store the engine drains.
type LocalStore interface {
	ListPendingSync(ctx context.Context) ([]store.Session, error)
	Get(ctx context.Context, id int64) (store.Session, error)
	Points(ctx context.Context, id int64) ([]recording.LocationPointInput, error)
	Readings(ctx context.Context, id int64) ([]recording.SensorReadingInput, error)
	SetRemoteID(ctx context.Context, id int64, remoteID string) error
	MarkSynced(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// Remote is the recording service surface the engine uploads through.
// *api.Client satisfies it.
type Remote interface {
	StartSession(ctx context.Context, meta recording.SessionCreate) (recording.Session, error)
	UploadLocationBatch(ctx context.Context, id string, points []recording.LocationPointInput) (recording.BatchResult, error)
	UploadSensorBatch(ctx context.Context, id string, readings []recording.SensorReadingInput) (recording.BatchResult, error)
	EndSession(ctx context.Context, id string, req recording.EndRequest) (recording.Session, error)
}

// Result summarizes one engine run. Conflicts lists sessions whose remote
// state diverged; those need the user to discard the local copy.
type Result struct {
	Synced    int
	Failed    int
	Conflicts []int64
}

// Engine uploads every pending_sync session and deletes it locally once the
// server confirms closure. Batches within a session are strictly ordered;
// a failed step leaves the session queued for the next run.
type Engine struct {
	store     LocalStore
	remote    Remote
	batchSize int

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

func New(st LocalStore, remote Remote, batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Engine{
		store:     st,
		remote:    remote,
		batchSize: batchSize,
		inFlight:  map[int64]struct{}{},
	}
}

// Run drains the pending queue. With nothing pending it is a no-op
// returning a zero Result. One failing session does not halt the run.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	pending, err := e.store.ListPendingSync(ctx)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, session := range pending {
		if !e.claim(session.ID) {
			continue
		}
		err := e.syncSession(ctx, session.ID)
		e.release(session.ID)

		switch {
		case err == nil:
			result.Synced++
		case api.IsConflict(err):
			log.Printf("sync: session %d diverged from remote, needs manual discard: %v", session.ID, err)
			result.Failed++
			result.Conflicts = append(result.Conflicts, session.ID)
		default:
			log.Printf("sync: session %d left queued, will retry: %v", session.ID, err)
			result.Failed++
		}
	}
	return result, nil
}

// syncSession runs the upload sequence for one session. The remote session
// is opened lazily here, not at recording time, since the device may never
// have regained connectivity. Any failure aborts before the local delete,
// so nothing partially uploaded is trusted.
func (e *Engine) syncSession(ctx context.Context, id int64) error {
	// Re-check under the claim; a concurrent pass may have finished it.
	session, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if session.Status != store.StatusPendingSync {
		return nil
	}

	remote, err := e.remote.StartSession(ctx, recording.SessionCreate{})
	if err != nil {
		return err
	}
	if err := e.store.SetRemoteID(ctx, id, remote.ID); err != nil {
		return err
	}

	points, err := e.store.Points(ctx, id)
	if err != nil {
		return err
	}
	for start := 0; start < len(points); start += e.batchSize {
		end := start + e.batchSize
		if end > len(points) {
			end = len(points)
		}
		if _, err := e.remote.UploadLocationBatch(ctx, remote.ID, points[start:end]); err != nil {
			return err
		}
	}

	readings, err := e.store.Readings(ctx, id)
	if err != nil {
		return err
	}
	for start := 0; start < len(readings); start += e.batchSize {
		end := start + e.batchSize
		if end > len(readings) {
			end = len(readings)
		}
		if _, err := e.remote.UploadSensorBatch(ctx, remote.ID, readings[start:end]); err != nil {
			return err
		}
	}

	endReq := recording.EndRequest{LineID: session.LineID}
	if session.LineName != nil {
		endReq.LineName = *session.LineName
	}
	if _, err := e.remote.EndSession(ctx, remote.ID, endReq); err != nil {
		return err
	}

	// The server is the system of record from here on.
	if err := e.store.MarkSynced(ctx, id); err != nil {
		return err
	}
	if err := e.store.Delete(ctx, id); err != nil {
		log.Printf("sync: session %d synced but local delete failed: %v", id, err)
	}
	return nil
}

func (e *Engine) claim(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[id]; busy {
		return false
	}
	e.inFlight[id] = struct{}{}
	return true
}

func (e *Engine) release(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, id)
}
