package recording

import (
	"context"
	"log"
	"time"

	"github.com/SofieTorch/cbba-mobility/internal/db"
	"github.com/SofieTorch/cbba-mobility/internal/shared/geo"

	"github.com/google/uuid"
)

// LineResolver turns an end request's line reference into a line id.
// A nil id with a non-empty name registers a new pending line; DiscardPending
// undoes that registration when the session transition it backed falls
// through.
type LineResolver interface {
	ResolveForRecording(ctx context.Context, lineID *string, lineName string) (string, error)
	DiscardPending(ctx context.Context, lineID string) error
}

type Service struct {
	db    db.Querier
	lines LineResolver
	now   func() time.Time
}

func NewService(db db.Querier, lines LineResolver) *Service {
	return &Service{db: db, lines: lines, now: time.Now}
}

func (s *Service) Start(ctx context.Context, input SessionCreate) (Session, error) {
	session := Session{
		ID:          uuid.NewString(),
		Direction:   input.Direction,
		DeviceModel: input.DeviceModel,
		OSVersion:   input.OSVersion,
		Notes:       input.Notes,
		Status:      StatusInProgress,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO recording_sessions (id, direction, device_model, os_version, notes, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING started_at, last_activity_at
	`, session.ID, session.Direction, session.DeviceModel, session.OSVersion, session.Notes, session.Status)
	if err := row.Scan(&session.StartedAt, &session.LastActivityAt); err != nil {
		return Session{}, err
	}
	return session, nil
}

func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, line_id, COALESCE(direction,''), COALESCE(device_model,''), COALESCE(os_version,''), COALESCE(notes,''),
		       status, started_at, ended_at, last_activity_at, ST_AsText(computed_path)
		FROM recording_sessions WHERE id=$1
	`, id)
	return scanSession(row)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Session, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, line_id, COALESCE(direction,''), COALESCE(device_model,''), COALESCE(os_version,''), COALESCE(notes,''),
		       status, started_at, ended_at, last_activity_at, ST_AsText(computed_path)
		FROM recording_sessions
		WHERE ($1::text IS NULL OR line_id=$1)
		  AND ($2::text IS NULL OR status=$2)
		ORDER BY started_at DESC
		OFFSET $3 LIMIT $4
	`, filter.LineID, (*string)(filter.Status), filter.Skip, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// IngestLocationBatch appends GPS points to an in-progress session and
// refreshes its activity timestamp. Duplicate deliveries after a lost
// response insert duplicate rows; path computation tolerates those, so the
// caller may retry batches freely.
func (s *Service) IngestLocationBatch(ctx context.Context, id string, points []LocationPointInput) (BatchResult, error) {
	if len(points) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}
	status, err := s.status(ctx, id)
	if err != nil {
		return BatchResult{}, err
	}
	if !ingestOK(status) {
		return BatchResult{}, &TransitionError{From: status, To: StatusInProgress}
	}

	for _, p := range points {
		_, err := s.db.Exec(ctx, `
			INSERT INTO location_points
				(session_id, timestamp, latitude, longitude, altitude, speed, bearing, horizontal_accuracy, vertical_accuracy, point)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, ST_SetSRID(ST_MakePoint($4,$3), 4326))
		`, id, p.Timestamp, p.Latitude, p.Longitude, p.Altitude, p.Speed, p.Bearing, p.HorizontalAccuracy, p.VerticalAccuracy)
		if err != nil {
			return BatchResult{}, err
		}
	}

	if err := s.touch(ctx, id); err != nil {
		return BatchResult{}, err
	}

	return BatchResult{
		Added:          len(points),
		SessionID:      id,
		FirstTimestamp: points[0].Timestamp,
		LastTimestamp:  points[len(points)-1].Timestamp,
	}, nil
}

func (s *Service) IngestSensorBatch(ctx context.Context, id string, readings []SensorReadingInput) (BatchResult, error) {
	if len(readings) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}
	status, err := s.status(ctx, id)
	if err != nil {
		return BatchResult{}, err
	}
	if !ingestOK(status) {
		return BatchResult{}, &TransitionError{From: status, To: StatusInProgress}
	}

	for _, r := range readings {
		_, err := s.db.Exec(ctx, `
			INSERT INTO sensor_readings
				(session_id, timestamp, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z, pressure, magnetic_heading)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, id, r.Timestamp, r.AccelX, r.AccelY, r.AccelZ, r.GyroX, r.GyroY, r.GyroZ, r.Pressure, r.MagneticHeading)
		if err != nil {
			return BatchResult{}, err
		}
	}

	if err := s.touch(ctx, id); err != nil {
		return BatchResult{}, err
	}

	return BatchResult{
		Added:          len(readings),
		SessionID:      id,
		FirstTimestamp: readings[0].Timestamp,
		LastTimestamp:  readings[len(readings)-1].Timestamp,
	}, nil
}

// End closes a session. With a line reference the session completes; with
// neither line_id nor line_name it is discarded. The path is computed from
// the stored points either way.
func (s *Service) End(ctx context.Context, id string, req EndRequest) (Session, error) {
	status, err := s.status(ctx, id)
	if err != nil {
		return Session{}, err
	}

	target := StatusDiscarded
	var lineID *string
	if req.LineID != nil || req.LineName != "" {
		target = StatusCompleted
	}
	if err := CheckTransition(status, target); err != nil {
		return Session{}, err
	}

	createdPendingLine := false
	if target == StatusCompleted {
		resolved, err := s.lines.ResolveForRecording(ctx, req.LineID, req.LineName)
		if err != nil {
			return Session{}, err
		}
		lineID = &resolved
		createdPendingLine = req.LineID == nil
	}

	wkt, err := s.computePath(ctx, id)
	if err != nil {
		return Session{}, err
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE recording_sessions
		SET status=$2, line_id=$3, ended_at=$4,
		    computed_path=CASE WHEN $5 = '' THEN NULL ELSE ST_GeomFromText($5, 4326) END
		WHERE id=$1 AND status='in_progress'
	`, id, target, lineID, s.now().UTC(), wkt)
	if err != nil {
		return Session{}, err
	}
	if tag.RowsAffected() == 0 {
		// Lost the race against another transition, typically the
		// staleness sweep. Whoever landed first wins. A line registered
		// for this end is undone; no session references it yet.
		if createdPendingLine && lineID != nil {
			if err := s.lines.DiscardPending(ctx, *lineID); err != nil {
				log.Printf("discarding pending line %s after lost transition failed: %v", *lineID, err)
			}
		}
		return Session{}, s.conflict(ctx, id, target)
	}
	return s.Get(ctx, id)
}

func (s *Service) Cancel(ctx context.Context, id string) (Session, error) {
	status, err := s.status(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if err := CheckTransition(status, StatusCancelled); err != nil {
		return Session{}, err
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE recording_sessions
		SET status='cancelled', ended_at=$2
		WHERE id=$1 AND status='in_progress'
	`, id, s.now().UTC())
	if err != nil {
		return Session{}, err
	}
	if tag.RowsAffected() == 0 {
		return Session{}, s.conflict(ctx, id, StatusCancelled)
	}
	return s.Get(ctx, id)
}

// CleanupStale abandons every in-progress session whose last activity is
// older than the threshold, preserving whatever path its points describe.
// Meant to be driven periodically, by cron or the in-process sweeper.
func (s *Service) CleanupStale(ctx context.Context, inactiveMinutes int) (CleanupResult, error) {
	cutoff := s.now().UTC().Add(-time.Duration(inactiveMinutes) * time.Minute)

	rows, err := s.db.Query(ctx, `
		SELECT id, last_activity_at FROM recording_sessions
		WHERE status='in_progress' AND last_activity_at < $1
	`, cutoff)
	if err != nil {
		return CleanupResult{}, err
	}

	type stale struct {
		id           string
		lastActivity time.Time
	}
	var found []stale
	for rows.Next() {
		var st stale
		if err := rows.Scan(&st.id, &st.lastActivity); err != nil {
			rows.Close()
			return CleanupResult{}, err
		}
		found = append(found, st)
	}
	rows.Close()

	result := CleanupResult{CheckedBefore: cutoff}
	for _, st := range found {
		wkt, err := s.computePath(ctx, st.id)
		if err != nil {
			return result, err
		}
		tag, err := s.db.Exec(ctx, `
			UPDATE recording_sessions
			SET status='abandoned', ended_at=$2,
			    computed_path=CASE WHEN $3 = '' THEN NULL ELSE ST_GeomFromText($3, 4326) END
			WHERE id=$1 AND status='in_progress'
		`, st.id, st.lastActivity, wkt)
		if err != nil {
			return result, err
		}
		// A concurrent end/cancel/resume may have moved the session on;
		// count only rows this sweep actually abandoned.
		if tag.RowsAffected() > 0 {
			result.AbandonedCount++
			result.SessionIDs = append(result.SessionIDs, st.id)
		}
	}
	return result, nil
}

// Resume reopens an abandoned session so a client that regained connectivity
// can keep uploading. Requires at least one stored point.
func (s *Service) Resume(ctx context.Context, id string) (Session, error) {
	status, err := s.status(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if err := CheckTransition(status, StatusInProgress); err != nil {
		return Session{}, err
	}

	var pointCount int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM location_points WHERE session_id=$1`, id).Scan(&pointCount); err != nil {
		return Session{}, err
	}
	if pointCount == 0 {
		return Session{}, ErrNothingToResume
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE recording_sessions
		SET status='in_progress', ended_at=NULL, last_activity_at=$2
		WHERE id=$1 AND status='abandoned'
	`, id, s.now().UTC())
	if err != nil {
		return Session{}, err
	}
	if tag.RowsAffected() == 0 {
		return Session{}, s.conflict(ctx, id, StatusInProgress)
	}
	return s.Get(ctx, id)
}

func (s *Service) LocationPoints(ctx context.Context, id string, skip, limit int) ([]LocationPoint, error) {
	if limit <= 0 {
		limit = 1000
	}
	if _, err := s.status(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, timestamp, latitude, longitude, altitude, speed, bearing, horizontal_accuracy, vertical_accuracy
		FROM location_points WHERE session_id=$1
		ORDER BY timestamp, id
		OFFSET $2 LIMIT $3
	`, id, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []LocationPoint
	for rows.Next() {
		var p LocationPoint
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Timestamp, &p.Latitude, &p.Longitude,
			&p.Altitude, &p.Speed, &p.Bearing, &p.HorizontalAccuracy, &p.VerticalAccuracy); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

func (s *Service) SensorReadings(ctx context.Context, id string, skip, limit int) ([]SensorReading, error) {
	if limit <= 0 {
		limit = 1000
	}
	if _, err := s.status(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, timestamp, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z, pressure, magnetic_heading
		FROM sensor_readings WHERE session_id=$1
		ORDER BY timestamp, id
		OFFSET $2 LIMIT $3
	`, id, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []SensorReading
	for rows.Next() {
		var r SensorReading
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Timestamp, &r.AccelX, &r.AccelY, &r.AccelZ,
			&r.GyroX, &r.GyroY, &r.GyroZ, &r.Pressure, &r.MagneticHeading); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, nil
}

func (s *Service) status(ctx context.Context, id string) (Status, error) {
	var status Status
	err := s.db.QueryRow(ctx, `SELECT status FROM recording_sessions WHERE id=$1`, id).Scan(&status)
	if err != nil {
		if isNoRows(err) {
			return "", ErrSessionNotFound
		}
		return "", err
	}
	return status, nil
}

// touch refreshes last_activity_at, but only while the session is still
// in progress; losing that race surfaces as a conflict so the uploader
// stops treating the session as open.
func (s *Service) touch(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE recording_sessions SET last_activity_at=$2
		WHERE id=$1 AND status='in_progress'
	`, id, s.now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.conflict(ctx, id, StatusInProgress)
	}
	return nil
}

// computePath renders the ordered points of a session as a WKT linestring.
// Ordering is timestamp ascending with insertion order breaking ties.
// Fewer than two points yield "" (no geometry).
func (s *Service) computePath(ctx context.Context, id string) (string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT longitude, latitude FROM location_points
		WHERE session_id=$1
		ORDER BY timestamp, id
	`, id)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var coords [][2]float64
	for rows.Next() {
		var lng, lat float64
		if err := rows.Scan(&lng, &lat); err != nil {
			return "", err
		}
		coords = append(coords, [2]float64{lng, lat})
	}
	return geo.LineStringWKT(coords), nil
}

// conflict re-reads the current status to build an accurate transition
// error after a compare-and-set update matched zero rows.
func (s *Service) conflict(ctx context.Context, id string, to Status) error {
	status, err := s.status(ctx, id)
	if err != nil {
		return err
	}
	return &TransitionError{From: status, To: to}
}

func scanSession(row interface{ Scan(dest ...any) error }) (Session, error) {
	var session Session
	var pathWKT *string
	err := row.Scan(&session.ID, &session.LineID, &session.Direction, &session.DeviceModel,
		&session.OSVersion, &session.Notes, &session.Status, &session.StartedAt,
		&session.EndedAt, &session.LastActivityAt, &pathWKT)
	if err != nil {
		if isNoRows(err) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	if pathWKT != nil {
		coords, err := geo.ParseLineStringWKT(*pathWKT)
		if err != nil {
			return Session{}, err
		}
		session.ComputedPath = coords
	}
	return session, nil
}
