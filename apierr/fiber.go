package apierr

import "github.com/gofiber/fiber/v2"

// Write renders err as {"error", "code", "details"?} with the mapped status.
func Write(c *fiber.Ctx, err error) error {
	e := From(err)
	if e == nil {
		e = New(Internal, fiber.StatusInternalServerError, nil)
	}
	body := fiber.Map{
		"error": e.Message(),
		"code":  string(e.Kind),
	}
	if e.Details != nil {
		body["details"] = e.Details
	}
	return c.Status(e.Status).JSON(body)
}
