// handlers/profile_routes.go
package handlers

import (
	"argufight-arena/services"

	"github.com/gofiber/fiber/v2"
)

type ProfileHandler struct {
	Profiles *services.ProfileService
}

func (h *ProfileHandler) Me(c *fiber.Ctx) error {
	p, err := h.Profiles.GetProfile(c.UserContext(), userID(c), queryInt(c, "history", 0))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(p)
}

func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	p, err := h.Profiles.GetProfile(c.UserContext(), c.Params("id"), queryInt(c, "history", 0))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(p)
}

func (h *ProfileHandler) Leaderboard(c *fiber.Ctx) error {
	users, err := h.Profiles.Leaderboard(c.UserContext(), queryInt(c, "limit", 50))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(users)
}

func (h *ProfileHandler) Search(c *fiber.Ctx) error {
	users, err := h.Profiles.SearchUsers(c.UserContext(), c.Query("q"), queryInt(c, "limit", 50))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(users)
}

type banRequest struct {
	Banned bool `json:"banned"`
}

func (h *ProfileHandler) SetBanned(c *fiber.Ctx) error {
	var req banRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	user, err := h.Profiles.SetBanned(c.UserContext(), c.Params("id"), req.Banned)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(user)
}
