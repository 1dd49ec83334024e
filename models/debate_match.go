package models

import "time"

type MatchStatus string

const (
	MatchWaiting      MatchStatus = "WAITING"
	MatchActive       MatchStatus = "ACTIVE"
	MatchCompleted    MatchStatus = "COMPLETED"
	MatchVerdictReady MatchStatus = "VERDICT_READY"
	MatchAppealed     MatchStatus = "APPEALED"
	MatchCancelled    MatchStatus = "CANCELLED"
)

type Position string

const (
	PositionFor     Position = "FOR"
	PositionAgainst Position = "AGAINST"
)

// Opposite returns the complementary debate side.
func (p Position) Opposite() Position {
	if p == PositionFor {
		return PositionAgainst
	}
	return PositionFor
}

func (p Position) Valid() bool {
	return p == PositionFor || p == PositionAgainst
}

type Verdict string

const (
	VerdictNone           Verdict = ""
	VerdictChallengerWins Verdict = "CHALLENGER_WINS"
	VerdictOpponentWins   Verdict = "OPPONENT_WINS"
	VerdictTie            Verdict = "TIE"
)

func (v Verdict) Valid() bool {
	switch v {
	case VerdictChallengerWins, VerdictOpponentWins, VerdictTie:
		return true
	}
	return false
}

type AppealStatus string

const (
	AppealNone     AppealStatus = "NONE"
	AppealPending  AppealStatus = "PENDING"
	AppealResolved AppealStatus = "RESOLVED"
	AppealDenied   AppealStatus = "DENIED"
)

// OwnerKind tags which higher-level structure, if any, a debate match belongs to.
type OwnerKind string

const (
	OwnerNone            OwnerKind = "NONE"
	OwnerBeltChallenge   OwnerKind = "BELT_CHALLENGE"
	OwnerTournamentMatch OwnerKind = "TOURNAMENT_MATCH"
)

// DebateMatch is one 1v1 multi-round exchange.
type DebateMatch struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Topic    string `gorm:"not null" json:"topic"`
	Category string `gorm:"index" json:"category,omitempty"`

	ChallengerID       string   `gorm:"type:uuid;not null;index" json:"challenger_id"`
	OpponentID         *string  `gorm:"type:uuid;index" json:"opponent_id,omitempty"`
	InvitedOpponentID  *string  `gorm:"type:uuid;index" json:"invited_opponent_id,omitempty"` // nil = open challenge
	ChallengerPosition Position `gorm:"type:varchar(8);not null" json:"challenger_position"`
	OpponentPosition   Position `gorm:"type:varchar(8);not null" json:"opponent_position"`

	TotalRounds          int        `gorm:"not null" json:"total_rounds"`
	CurrentRound         int        `gorm:"not null;default:1" json:"current_round"`
	RoundDurationSeconds int64      `gorm:"not null" json:"round_duration_seconds"`
	RoundDeadline        *time.Time `gorm:"index" json:"round_deadline,omitempty"`

	Status MatchStatus `gorm:"type:varchar(16);not null;index" json:"status"`

	// Verdict
	WinnerID           *string    `gorm:"type:uuid" json:"winner_id,omitempty"`
	Verdict            Verdict    `gorm:"type:varchar(16)" json:"verdict,omitempty"`
	ChallengerScore    *int       `json:"challenger_score,omitempty"`
	OpponentScore      *int       `json:"opponent_score,omitempty"`
	VerdictReached     bool       `gorm:"not null;default:false" json:"verdict_reached"`
	VerdictDate        *time.Time `json:"verdict_date,omitempty"`
	ChallengerEloDelta int        `gorm:"not null;default:0" json:"challenger_elo_delta"`
	OpponentEloDelta   int        `gorm:"not null;default:0" json:"opponent_elo_delta"`
	ForfeitedBy        *string    `gorm:"type:uuid" json:"forfeited_by,omitempty"`

	// Appeal
	AppealStatus     AppealStatus `gorm:"type:varchar(16);not null;default:'NONE'" json:"appeal_status"`
	AppealedBy       *string      `gorm:"type:uuid" json:"appealed_by,omitempty"`
	AppealReason     string       `json:"appeal_reason,omitempty"`
	AppealResolvedAt *time.Time   `json:"appeal_resolved_at,omitempty"`

	OwnerKind OwnerKind `gorm:"type:varchar(24);not null;default:'NONE';index:idx_debate_owner,priority:1" json:"owner_kind"`
	OwnerID   *string   `gorm:"type:uuid;index:idx_debate_owner,priority:2" json:"owner_id,omitempty"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	Timestamps
}

// IsParticipant reports whether userID occupies either slot.
func (m *DebateMatch) IsParticipant(userID string) bool {
	if m.ChallengerID == userID {
		return true
	}
	return m.OpponentID != nil && *m.OpponentID == userID
}

// Statement is one immutable argument submission.
type Statement struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	DebateMatchID string    `gorm:"type:uuid;not null;uniqueIndex:idx_statement_once,priority:1" json:"debate_match_id"`
	AuthorID      string    `gorm:"type:uuid;not null;uniqueIndex:idx_statement_once,priority:2" json:"author_id"`
	Round         int       `gorm:"not null;uniqueIndex:idx_statement_once,priority:3" json:"round"`
	Content       string    `gorm:"type:text;not null" json:"content"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}
