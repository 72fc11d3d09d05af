package line

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req LineCreate
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name required")
		}
		ln, err := svc.Create(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(ln)
	})

	r.Get("/", func(c *fiber.Ctx) error {
		status := Status(c.Query("status", string(StatusApproved)))
		includeAll := c.QueryBool("include_all", false)
		lines, err := svc.List(c.Context(), status, includeAll, c.QueryInt("skip", 0), c.QueryInt("limit", 100))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if lines == nil {
			lines = []Line{}
		}
		return c.JSON(lines)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		ln, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(ln)
	})

	r.Patch("/:id", authMiddleware, func(c *fiber.Ctx) error {
		var patch LineUpdate
		if err := c.BodyParser(&patch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		ln, err := svc.Update(c.Context(), c.Params("id"), patch)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			}
			if errors.Is(err, ErrInvalidMerge) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(ln)
	})
}
