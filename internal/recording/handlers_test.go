package recording

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
)

func passthrough(c *fiber.Ctx) error { return c.Next() }

func newTestApp(svc *Service) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app.Group("/recordings"), svc, passthrough)
	return app
}

func TestStartRecordingHandler(t *testing.T) {
	mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO recording_sessions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"started_at", "last_activity_at"}).AddRow(now, now))

	app := newTestApp(NewService(mock, nil))

	body, _ := json.Marshal(SessionCreate{DeviceModel: "Pixel 7"})
	req := httptest.NewRequest(http.MethodPost, "/recordings/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status: %v %v", resp.StatusCode, err)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if session.Status != StatusInProgress || session.ID == "" {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestStartRecordingHandlerBadBody(t *testing.T) {
	app := newTestApp(NewService(nil, nil))

	req := httptest.NewRequest(http.MethodPost, "/recordings/", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request")
	}
}

func TestLocationBatchHandler(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT status FROM recording_sessions`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(StatusInProgress))
	mock.ExpectExec(`INSERT INTO location_points`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE recording_sessions SET last_activity_at`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	app := newTestApp(NewService(mock, nil))

	body, _ := json.Marshal(LocationBatch{Points: []LocationPointInput{
		{Timestamp: time.Now(), Latitude: -17.39, Longitude: -66.15},
	}})
	req := httptest.NewRequest(http.MethodPost, "/recordings/session-1/locations/batch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("batch status: %v %v", resp.StatusCode, err)
	}

	var result BatchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Added != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestLocationBatchHandlerEmpty(t *testing.T) {
	app := newTestApp(NewService(nil, nil))

	body, _ := json.Marshal(LocationBatch{})
	req := httptest.NewRequest(http.MethodPost, "/recordings/session-1/locations/batch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for empty batch, got %d", resp.StatusCode)
	}
}

func TestLocationBatchHandlerConflict(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT status FROM recording_sessions`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(StatusAbandoned))

	app := newTestApp(NewService(mock, nil))

	body, _ := json.Marshal(LocationBatch{Points: []LocationPointInput{
		{Timestamp: time.Now(), Latitude: 1, Longitude: 2},
	}})
	req := httptest.NewRequest(http.MethodPost, "/recordings/session-1/locations/batch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict, got %d", resp.StatusCode)
	}
}

func TestSensorBatchHandler(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT status FROM recording_sessions`).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(StatusInProgress))
	mock.ExpectExec(`INSERT INTO sensor_readings`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE recording_sessions SET last_activity_at`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	app := newTestApp(NewService(mock, nil))

	accel := 0.98
	body, _ := json.Marshal(SensorBatch{Readings: []SensorReadingInput{
		{Timestamp: time.Now(), AccelZ: &accel},
	}})
	req := httptest.NewRequest(http.MethodPost, "/recordings/session-1/sensors/batch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("sensor batch status: %v %v", resp.StatusCode, err)
	}
}

func TestCleanupStaleHandler(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT id, last_activity_at FROM recording_sessions`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "last_activity_at"}))

	app := newTestApp(NewService(mock, nil))

	req := httptest.NewRequest(http.MethodPost, "/recordings/cleanup/stale?inactive_minutes=30", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("cleanup status: %v %v", resp.StatusCode, err)
	}

	var result CleanupResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.AbandonedCount != 0 || result.SessionIDs == nil {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCleanupStaleHandlerRejectsLowThreshold(t *testing.T) {
	app := newTestApp(NewService(nil, nil))

	req := httptest.NewRequest(http.MethodPost, "/recordings/cleanup/stale?inactive_minutes=2", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for low threshold, got %d", resp.StatusCode)
	}
}

func TestResumeHandlerNoPoints(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT status FROM recording_sessions`).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(StatusAbandoned))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM location_points`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	app := newTestApp(NewService(mock, nil))

	req := httptest.NewRequest(http.MethodPost, "/recordings/session-1/resume", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for empty resume, got %d", resp.StatusCode)
	}
}

func TestGetRecordingHandlerNotFound(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT id, line_id`).
		WillReturnRows(pgxmock.NewRows(sessionColumns()))

	app := newTestApp(NewService(mock, nil))

	req := httptest.NewRequest(http.MethodGet, "/recordings/missing", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", resp.StatusCode)
	}
}

func TestListRecordingsHandler(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT id, line_id`).
		WillReturnRows(sessionRow("session-1", StatusCompleted, nil))

	app := newTestApp(NewService(mock, nil))

	req := httptest.NewRequest(http.MethodGet, "/recordings/?status=completed", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list status: %v %v", resp.StatusCode, err)
	}

	var sessions []Session
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one session")
	}
}
