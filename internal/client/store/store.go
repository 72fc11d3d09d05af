package store

import (
	"context"
	"errors"
	"time"

	"github.com/SofieTorch/cbba-mobility/internal/db"
	"github.com/SofieTorch/cbba-mobility/internal/recording"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrAlreadyRecording enforces the single active recording per device.
	ErrAlreadyRecording = errors.New("a recording session is already active")

	ErrNoActiveSession = errors.New("no recording session is active")
	ErrSessionNotFound = errors.New("local session not found")
)

// Store is the durable device-side session store. All side effects stay in
// the database; nothing here touches the network.
type Store struct {
	db  db.Querier
	now func() time.Time
}

func NewStore(db db.Querier) *Store {
	return &Store{db: db, now: time.Now}
}

// Start opens a new recording session. At most one session may be in the
// recording status device-wide; a second Start fails. The schema backs this
// with a partial unique index on status='recording', so two starts racing
// between the pre-check and the insert still cannot both commit.
func (s *Store) Start(ctx context.Context) (Session, error) {
	var active bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM recordings WHERE status='recording')
	`).Scan(&active)
	if err != nil {
		return Session{}, err
	}
	if active {
		return Session{}, ErrAlreadyRecording
	}

	session := Session{Status: StatusRecording}
	row := s.db.QueryRow(ctx, `
		INSERT INTO recordings (status) VALUES ('recording')
		RETURNING id, started_at, last_activity_at
	`)
	if err := row.Scan(&session.ID, &session.StartedAt, &session.LastActivityAt); err != nil {
		if isUniqueViolation(err) {
			return Session{}, ErrAlreadyRecording
		}
		return Session{}, err
	}
	return session, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Current resolves the unique recording session by status. Callers must use
// this rather than holding a session id across suspension points; the
// background context and the UI do not share memory.
func (s *Store) Current(ctx context.Context) (Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, status, remote_id, line_id, line_name, started_at, ended_at, last_activity_at
		FROM recordings WHERE status='recording'
	`)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNoActiveSession
		}
		return Session{}, err
	}
	return session, nil
}

func (s *Store) Get(ctx context.Context, id int64) (Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, status, remote_id, line_id, line_name, started_at, ended_at, last_activity_at
		FROM recordings WHERE id=$1
	`, id)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return session, nil
}

// AppendLocationPoints stores a batch of GPS fixes. If the session has left
// the recording status (the user stopped between delivery and storage), the
// batch is accepted but dropped, returning 0 stored.
func (s *Store) AppendLocationPoints(ctx context.Context, sessionID int64, points []recording.LocationPointInput) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if session.Status != StatusRecording {
		return 0, nil
	}

	for _, p := range points {
		_, err := s.db.Exec(ctx, `
			INSERT INTO location_points
				(session_id, timestamp, latitude, longitude, altitude, speed, bearing, horizontal_accuracy, vertical_accuracy)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, sessionID, p.Timestamp, p.Latitude, p.Longitude, p.Altitude, p.Speed, p.Bearing, p.HorizontalAccuracy, p.VerticalAccuracy)
		if err != nil {
			return 0, err
		}
	}

	if err := s.Touch(ctx, sessionID); err != nil {
		return 0, err
	}
	return len(points), nil
}

// AppendSensorReadings mirrors AppendLocationPoints for motion samples.
func (s *Store) AppendSensorReadings(ctx context.Context, sessionID int64, readings []recording.SensorReadingInput) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if session.Status != StatusRecording {
		return 0, nil
	}

	for _, r := range readings {
		_, err := s.db.Exec(ctx, `
			INSERT INTO sensor_readings
				(session_id, timestamp, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z, pressure, magnetic_heading)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, sessionID, r.Timestamp, r.AccelX, r.AccelY, r.AccelZ, r.GyroX, r.GyroY, r.GyroZ, r.Pressure, r.MagneticHeading)
		if err != nil {
			return 0, err
		}
	}

	if err := s.Touch(ctx, sessionID); err != nil {
		return 0, err
	}
	return len(readings), nil
}

// Touch refreshes last_activity_at without adding data, so a stationary
// recorder is not mistaken for a dead one. No-op once the session has left
// the recording status.
func (s *Store) Touch(ctx context.Context, sessionID int64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE recordings SET last_activity_at=$2
		WHERE id=$1 AND status='recording'
	`, sessionID, s.now().UTC())
	return err
}

// Finalize moves a recording session to pending_sync, discarded or
// cancelled, stamping ended_at. Finalizing an already terminal session is
// an idempotent no-op.
func (s *Store) Finalize(ctx context.Context, sessionID int64, ref LineRef, target Status) (Session, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if IsTerminal(session.Status) {
		return session, nil
	}
	if err := CheckTransition(session.Status, target); err != nil {
		return Session{}, err
	}

	now := s.now().UTC()
	var lineName *string
	if ref.LineName != "" {
		lineName = &ref.LineName
	}
	_, err = s.db.Exec(ctx, `
		UPDATE recordings
		SET status=$2, line_id=$3, line_name=$4, ended_at=$5, last_activity_at=$5
		WHERE id=$1
	`, sessionID, target, ref.LineID, lineName, now)
	if err != nil {
		return Session{}, err
	}
	return s.Get(ctx, sessionID)
}

func (s *Store) ListPendingSync(ctx context.Context) ([]Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, status, remote_id, line_id, line_name, started_at, ended_at, last_activity_at
		FROM recordings WHERE status='pending_sync'
		ORDER BY id
	`)
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

// Points returns a session's GPS fixes ordered by timestamp ascending,
// insertion order breaking ties.
func (s *Store) Points(ctx context.Context, sessionID int64) ([]recording.LocationPointInput, error) {
	rows, err := s.db.Query(ctx, `
		SELECT timestamp, latitude, longitude, altitude, speed, bearing, horizontal_accuracy, vertical_accuracy
		FROM location_points WHERE session_id=$1
		ORDER BY timestamp, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []recording.LocationPointInput
	for rows.Next() {
		var p recording.LocationPointInput
		if err := rows.Scan(&p.Timestamp, &p.Latitude, &p.Longitude, &p.Altitude, &p.Speed,
			&p.Bearing, &p.HorizontalAccuracy, &p.VerticalAccuracy); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

func (s *Store) Readings(ctx context.Context, sessionID int64) ([]recording.SensorReadingInput, error) {
	rows, err := s.db.Query(ctx, `
		SELECT timestamp, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z, pressure, magnetic_heading
		FROM sensor_readings WHERE session_id=$1
		ORDER BY timestamp, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []recording.SensorReadingInput
	for rows.Next() {
		var r recording.SensorReadingInput
		if err := rows.Scan(&r.Timestamp, &r.AccelX, &r.AccelY, &r.AccelZ,
			&r.GyroX, &r.GyroY, &r.GyroZ, &r.Pressure, &r.MagneticHeading); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, nil
}

// SetRemoteID records the server-assigned session id once the server
// accepts the session.
func (s *Store) SetRemoteID(ctx context.Context, sessionID int64, remoteID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE recordings SET remote_id=$2 WHERE id=$1
	`, sessionID, remoteID)
	return err
}

// MarkSynced transitions pending_sync -> synced. The compare-and-set guards
// against a second sync pass racing this one.
func (s *Store) MarkSynced(ctx context.Context, sessionID int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE recordings SET status='synced'
		WHERE id=$1 AND status='pending_sync'
	`, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		session, err := s.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		return &TransitionError{From: session.Status, To: StatusSynced}
	}
	return nil
}

// Delete removes a session; location points and sensor readings cascade
// with it.
func (s *Store) Delete(ctx context.Context, sessionID int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM recordings WHERE id=$1`, sessionID)
	return err
}

func scanSession(row interface{ Scan(dest ...any) error }) (Session, error) {
	var session Session
	err := row.Scan(&session.ID, &session.Status, &session.RemoteID, &session.LineID,
		&session.LineName, &session.StartedAt, &session.EndedAt, &session.LastActivityAt)
	if err != nil {
		return Session{}, err
	}
	return session, nil
}
