package observability

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// UnmatchedRoute is the route label for requests no route handled.
const UnmatchedRoute = "unmatched"

type unmatchedKey struct{}

// MarkUnmatched flags the request as not having matched any route.
func MarkUnmatched(c *fiber.Ctx) {
	c.Locals(unmatchedKey{}, true)
}

// RouteLabel returns the route template used as the path label, so ids in
// the URL never become label values.
func RouteLabel(c *fiber.Ctx) string {
	if unmatched, _ := c.Locals(unmatchedKey{}).(bool); unmatched {
		return UnmatchedRoute
	}
	return utils.CopyString(c.Route().Path)
}
