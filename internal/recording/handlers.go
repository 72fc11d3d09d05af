package recording

import (
	"errors"

	"github.com/SofieTorch/cbba-mobility/internal/line"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req SessionCreate
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		session, err := svc.Start(c.Context(), req)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	r.Get("/", func(c *fiber.Ctx) error {
		filter := ListFilter{
			Skip:  c.QueryInt("skip", 0),
			Limit: c.QueryInt("limit", 100),
		}
		if v := c.Query("line_id"); v != "" {
			filter.LineID = &v
		}
		if v := c.Query("status"); v != "" {
			status := Status(v)
			filter.Status = &status
		}
		sessions, err := svc.List(c.Context(), filter)
		if err != nil {
			return httpError(err)
		}
		if sessions == nil {
			sessions = []Session{}
		}
		return c.JSON(sessions)
	})

	// Registered before /:id routes so "cleanup" is not taken for an id.
	r.Post("/cleanup/stale", authMiddleware, func(c *fiber.Ctx) error {
		inactive := c.QueryInt("inactive_minutes", 30)
		if inactive < 5 {
			return fiber.NewError(fiber.StatusBadRequest, "inactive_minutes must be at least 5")
		}
		result, err := svc.CleanupStale(c.Context(), inactive)
		if err != nil {
			return httpError(err)
		}
		if result.SessionIDs == nil {
			result.SessionIDs = []string{}
		}
		return c.JSON(result)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		session, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(session)
	})

	r.Post("/:id/locations/batch", authMiddleware, func(c *fiber.Ctx) error {
		var batch LocationBatch
		if err := c.BodyParser(&batch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		result, err := svc.IngestLocationBatch(c.Context(), c.Params("id"), batch.Points)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})

	r.Post("/:id/sensors/batch", authMiddleware, func(c *fiber.Ctx) error {
		var batch SensorBatch
		if err := c.BodyParser(&batch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		result, err := svc.IngestSensorBatch(c.Context(), c.Params("id"), batch.Readings)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})

	r.Get("/:id/locations", func(c *fiber.Ctx) error {
		points, err := svc.LocationPoints(c.Context(), c.Params("id"), c.QueryInt("skip", 0), c.QueryInt("limit", 1000))
		if err != nil {
			return httpError(err)
		}
		if points == nil {
			points = []LocationPoint{}
		}
		return c.JSON(points)
	})

	r.Get("/:id/sensors", func(c *fiber.Ctx) error {
		readings, err := svc.SensorReadings(c.Context(), c.Params("id"), c.QueryInt("skip", 0), c.QueryInt("limit", 1000))
		if err != nil {
			return httpError(err)
		}
		if readings == nil {
			readings = []SensorReading{}
		}
		return c.JSON(readings)
	})

	r.Post("/:id/end", authMiddleware, func(c *fiber.Ctx) error {
		var req EndRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		session, err := svc.End(c.Context(), c.Params("id"), req)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(session)
	})

	r.Post("/:id/cancel", authMiddleware, func(c *fiber.Ctx) error {
		session, err := svc.Cancel(c.Context(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(session)
	})

	r.Post("/:id/resume", authMiddleware, func(c *fiber.Ctx) error {
		session, err := svc.Resume(c.Context(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(session)
	})
}

func httpError(err error) error {
	var transition *TransitionError
	var merged *line.MergedError
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, line.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.As(err, &transition):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrEmptyBatch), errors.Is(err, ErrNothingToResume), errors.As(err, &merged):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
