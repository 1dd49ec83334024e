package handlers

import (
	"time"

	"argufight-arena/models"
	"argufight-arena/services"

	"github.com/gofiber/fiber/v2"
)

type DebateHandler struct {
	Debates    *services.DebateService
	Settlement *services.SettlementService
}

type createDebateRequest struct {
	Topic                string  `json:"topic" validate:"required,max=500"`
	Category             string  `json:"category" validate:"max=64"`
	Position             string  `json:"position" validate:"omitempty,oneof=FOR AGAINST"`
	TotalRounds          int     `json:"total_rounds" validate:"gte=0"`
	RoundDurationSeconds int64   `json:"round_duration_seconds" validate:"gte=0"`
	OpponentID           *string `json:"opponent_id" validate:"omitempty,uuid"`
}

func (h *DebateHandler) Create(c *fiber.Ctx) error {
	var req createDebateRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	match, err := h.Debates.Create(c.UserContext(), services.CreateMatchParams{
		ChallengerID:      userID(c),
		InvitedOpponentID: req.OpponentID,
		Topic:             req.Topic,
		Category:          req.Category,
		Position:          models.Position(req.Position),
		TotalRounds:       req.TotalRounds,
		RoundDuration:     time.Duration(req.RoundDurationSeconds) * time.Second,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(match)
}

func (h *DebateHandler) Get(c *fiber.Ctx) error {
	match, err := h.Debates.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	statements, err := h.Debates.ListStatements(c.UserContext(), match.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"match": match, "statements": statements})
}

func (h *DebateHandler) Accept(c *fiber.Ctx) error {
	match, err := h.Debates.Accept(c.UserContext(), c.Params("id"), userID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(match)
}

func (h *DebateHandler) Decline(c *fiber.Ctx) error {
	match, err := h.Debates.Decline(c.UserContext(), c.Params("id"), userID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(match)
}

func (h *DebateHandler) Withdraw(c *fiber.Ctx) error {
	match, err := h.Debates.Withdraw(c.UserContext(), c.Params("id"), userID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(match)
}

type submitStatementRequest struct {
	Round   int    `json:"round" validate:"required,gte=1"`
	Content string `json:"content" validate:"required,max=10000"`
}

func (h *DebateHandler) SubmitStatement(c *fiber.Ctx) error {
	var req submitStatementRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	res, err := h.Debates.SubmitStatement(c.UserContext(), c.Params("id"), userID(c), req.Round, req.Content)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

type appealRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

func (h *DebateHandler) Appeal(c *fiber.Ctx) error {
	var req appealRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	match, err := h.Debates.RaiseAppeal(c.UserContext(), c.Params("id"), userID(c), req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(match)
}

type verdictRequest struct {
	Decision        string `json:"decision" validate:"required,oneof=CHALLENGER_WINS OPPONENT_WINS TIE"`
	ChallengerScore *int   `json:"challenger_score" validate:"omitempty,gte=0"`
	OpponentScore   *int   `json:"opponent_score" validate:"omitempty,gte=0"`
}

// SettleVerdict is called by the judging oracle.
func (h *DebateHandler) SettleVerdict(c *fiber.Ctx) error {
	var req verdictRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	match, err := h.Settlement.SettleVerdict(c.UserContext(), c.Params("id"), models.Verdict(req.Decision), services.Scores{
		Challenger: req.ChallengerScore,
		Opponent:   req.OpponentScore,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(match)
}

type resolveAppealRequest struct {
	Upheld  bool   `json:"upheld"`
	Verdict string `json:"verdict" validate:"omitempty,oneof=CHALLENGER_WINS OPPONENT_WINS TIE"`
}

func (h *DebateHandler) ResolveAppeal(c *fiber.Ctx) error {
	var req resolveAppealRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	match, err := h.Settlement.ResolveAppeal(c.UserContext(), c.Params("id"), services.AppealDecision{
		Upheld:  req.Upheld,
		Verdict: models.Verdict(req.Verdict),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(match)
}

// Forfeit lets the scheduler (or an admin) force an overdue match to completion.
func (h *DebateHandler) Forfeit(c *fiber.Ctx) error {
	forfeited, err := h.Settlement.ForfeitOverdue(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"forfeited": forfeited})
}
