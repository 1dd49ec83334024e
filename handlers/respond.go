package handlers

import (
	"errors"
	"log"
	"strconv"

	"argufight-arena/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// parseBody decodes and validates a JSON request body. On failure it has already
// written the response and returns false.
func parseBody(c *fiber.Ctx, out interface{}) (bool, error) {
	if err := c.BodyParser(out); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation failed", "fields": fields})
		}
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return true, nil
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

var kindStatus = map[services.ErrorKind]int{
	services.KindNotFound:          fiber.StatusNotFound,
	services.KindInvalidInput:      fiber.StatusBadRequest,
	services.KindSelfChallenge:     fiber.StatusBadRequest,
	services.KindWrongRound:        fiber.StatusBadRequest,
	services.KindInsufficientFunds: fiber.StatusPaymentRequired,
	services.KindBelowMinElo:       fiber.StatusForbidden,
}

// statusFor maps a domain error kind to an HTTP status.
func statusFor(kind services.ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	switch kind.Category() {
	case services.CategoryAuthorization:
		return fiber.StatusForbidden
	case services.CategoryConsistency:
		return fiber.StatusOK
	default:
		return fiber.StatusConflict
	}
}

// writeError renders err. Consistency errors mean the effect already happened and
// are reported as a no-op success.
func writeError(c *fiber.Ctx, err error) error {
	var de *services.Error
	if !errors.As(err, &de) {
		log.Printf("❌ [HTTP] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	status := statusFor(de.Kind)
	if de.Kind.Category() == services.CategoryConsistency {
		return c.Status(status).JSON(fiber.Map{"noop": true, "code": de.Kind, "message": de.Message})
	}
	return c.Status(status).JSON(fiber.Map{"error": de.Message, "code": de.Kind})
}

func queryInt(c *fiber.Ctx, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
