package recording

import "time"

// Status of a recording session on the server. The session is the server's
// system of record once a client hands it over; every transition goes
// through the table in fsm.go.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusAbandoned  Status = "abandoned"
	StatusDiscarded  Status = "discarded"
)

type Session struct {
	ID             string       `json:"id"`
	LineID         *string      `json:"line_id"`
	Direction      string       `json:"direction,omitempty"`
	DeviceModel    string       `json:"device_model,omitempty"`
	OSVersion      string       `json:"os_version,omitempty"`
	Notes          string       `json:"notes,omitempty"`
	Status         Status       `json:"status"`
	StartedAt      time.Time    `json:"started_at"`
	EndedAt        *time.Time   `json:"ended_at"`
	LastActivityAt time.Time    `json:"last_activity_at"`
	ComputedPath   [][2]float64 `json:"computed_path"`
}

// SessionCreate carries the optional device metadata sent when a session is
// opened. The line is assigned at end time, never at start.
type SessionCreate struct {
	Direction   string `json:"direction"`
	DeviceModel string `json:"device_model"`
	OSVersion   string `json:"os_version"`
	Notes       string `json:"notes"`
}

// EndRequest finishes a session. line_id assigns an existing line,
// line_name proposes a new one; with neither, the session is discarded.
type EndRequest struct {
	LineID   *string `json:"line_id"`
	LineName string  `json:"line_name"`
}

type LocationPoint struct {
	ID                 int64     `json:"id"`
	SessionID          string    `json:"session_id"`
	Timestamp          time.Time `json:"timestamp"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Altitude           *float64  `json:"altitude,omitempty"`
	Speed              *float64  `json:"speed,omitempty"`
	Bearing            *float64  `json:"bearing,omitempty"`
	HorizontalAccuracy *float64  `json:"horizontal_accuracy,omitempty"`
	VerticalAccuracy   *float64  `json:"vertical_accuracy,omitempty"`
}

type SensorReading struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"session_id"`
	Timestamp       time.Time `json:"timestamp"`
	AccelX          *float64  `json:"accel_x,omitempty"`
	AccelY          *float64  `json:"accel_y,omitempty"`
	AccelZ          *float64  `json:"accel_z,omitempty"`
	GyroX           *float64  `json:"gyro_x,omitempty"`
	GyroY           *float64  `json:"gyro_y,omitempty"`
	GyroZ           *float64  `json:"gyro_z,omitempty"`
	Pressure        *float64  `json:"pressure,omitempty"`
	MagneticHeading *float64  `json:"magnetic_heading,omitempty"`
}

// LocationPointInput is the wire shape of one uploaded GPS fix.
type LocationPointInput struct {
	Timestamp          time.Time `json:"timestamp"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Altitude           *float64  `json:"altitude,omitempty"`
	Speed              *float64  `json:"speed,omitempty"`
	Bearing            *float64  `json:"bearing,omitempty"`
	HorizontalAccuracy *float64  `json:"horizontal_accuracy,omitempty"`
	VerticalAccuracy   *float64  `json:"vertical_accuracy,omitempty"`
}

// SensorReadingInput is the wire shape of one uploaded sensor sample.
type SensorReadingInput struct {
	Timestamp       time.Time `json:"timestamp"`
	AccelX          *float64  `json:"accel_x,omitempty"`
	AccelY          *float64  `json:"accel_y,omitempty"`
	AccelZ          *float64  `json:"accel_z,omitempty"`
	GyroX           *float64  `json:"gyro_x,omitempty"`
	GyroY           *float64  `json:"gyro_y,omitempty"`
	GyroZ           *float64  `json:"gyro_z,omitempty"`
	Pressure        *float64  `json:"pressure,omitempty"`
	MagneticHeading *float64  `json:"magnetic_heading,omitempty"`
}

type LocationBatch struct {
	Points []LocationPointInput `json:"points"`
}

type SensorBatch struct {
	Readings []SensorReadingInput `json:"readings"`
}

// BatchResult reports what an ingest call accepted, for caller bookkeeping.
type BatchResult struct {
	Added          int       `json:"added"`
	SessionID      string    `json:"session_id"`
	FirstTimestamp time.Time `json:"first_timestamp"`
	LastTimestamp  time.Time `json:"last_timestamp"`
}

type CleanupResult struct {
	CheckedBefore  time.Time `json:"checked_before"`
	AbandonedCount int       `json:"abandoned_count"`
	SessionIDs     []string  `json:"session_ids"`
}

type ListFilter struct {
	LineID *string
	Status *Status
	Skip   int
	Limit  int
}
