package handlers

import (
	"time"

	"argufight-arena/models"
	"argufight-arena/services"

	"github.com/gofiber/fiber/v2"
)

type BeltHandler struct {
	Belts *services.BeltService
}

func (h *BeltHandler) Get(c *fiber.Ctx) error {
	belt, err := h.Belts.GetBelt(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	history, err := h.Belts.BeltHistory(c.UserContext(), belt.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"belt": belt, "history": history})
}

type createChallengeRequest struct {
	Topic                string `json:"topic" validate:"required,max=500"`
	Category             string `json:"category" validate:"max=64"`
	Position             string `json:"position" validate:"omitempty,oneof=FOR AGAINST"`
	TotalRounds          int    `json:"total_rounds" validate:"gte=0"`
	RoundDurationSeconds int64  `json:"round_duration_seconds" validate:"gte=0"`
	UseFreeChallenge     bool   `json:"use_free_challenge"`
}

func (h *BeltHandler) CreateChallenge(c *fiber.Ctx) error {
	var req createChallengeRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	challenge, err := h.Belts.CreateChallenge(c.UserContext(), services.CreateChallengeParams{
		BeltID:           c.Params("id"),
		ChallengerID:     userID(c),
		Topic:            req.Topic,
		Category:         req.Category,
		Position:         models.Position(req.Position),
		TotalRounds:      req.TotalRounds,
		RoundDuration:    time.Duration(req.RoundDurationSeconds) * time.Second,
		UseFreeChallenge: req.UseFreeChallenge,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(challenge)
}

type respondChallengeRequest struct {
	Decision string `json:"decision" validate:"required,oneof=ACCEPT DECLINE"`
}

func (h *BeltHandler) RespondToChallenge(c *fiber.Ctx) error {
	var req respondChallengeRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	res, err := h.Belts.RespondToChallenge(c.UserContext(), c.Params("id"), userID(c), req.Decision == "ACCEPT")
	if err != nil {
		return writeError(c, err)
	}
	out := fiber.Map{"status": res.Challenge.Status, "challenge": res.Challenge}
	if res.Match != nil {
		out["match_id"] = res.Match.ID
	}
	return c.JSON(out)
}

func (h *BeltHandler) ListMyChallenges(c *fiber.Ctx) error {
	challenges, err := h.Belts.ListChallenges(c.UserContext(), userID(c), models.ChallengeStatus(c.Query("status")))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(challenges)
}

type createBeltRequest struct {
	Name     string  `json:"name" validate:"required,max=120"`
	Type     string  `json:"type" validate:"required,oneof=ROOKIE CATEGORY CHAMPIONSHIP UNDEFEATED TOURNAMENT"`
	Category string  `json:"category" validate:"max=64"`
	HolderID *string `json:"holder_id" validate:"omitempty,uuid"`
	Status   string  `json:"status" validate:"omitempty,oneof=ACTIVE MANDATORY GRACE_PERIOD"`
}

func (h *BeltHandler) CreateBelt(c *fiber.Ctx) error {
	var req createBeltRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	belt, err := h.Belts.CreateBelt(c.UserContext(), services.CreateBeltParams{
		Name:     req.Name,
		Type:     models.BeltType(req.Type),
		Category: req.Category,
		HolderID: req.HolderID,
		Status:   models.BeltStatus(req.Status),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(belt)
}

type claimBeltRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

func (h *BeltHandler) ClaimVacant(c *fiber.Ctx) error {
	var req claimBeltRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	belt, err := h.Belts.ClaimVacantBelt(c.UserContext(), c.Params("id"), req.UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(belt)
}

// ExpireChallenge lets the scheduler force-expire one challenge.
func (h *BeltHandler) ExpireChallenge(c *fiber.Ctx) error {
	expired, err := h.Belts.ExpireChallenge(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"expired": expired})
}
