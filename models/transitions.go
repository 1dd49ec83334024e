package models

// Every entity status moves only along the edges listed in its table.
// A (state, event) pair that is not listed is rejected by the caller.

type transitions[S ~string, E ~string] map[S]map[E]S

func (t transitions[S, E]) next(from S, ev E) (S, bool) {
	to, ok := t[from][ev]
	return to, ok
}

type MatchEvent string

const (
	MatchEventAccept        MatchEvent = "accept"
	MatchEventDecline       MatchEvent = "decline"
	MatchEventWithdraw      MatchEvent = "withdraw"
	MatchEventFinalRound    MatchEvent = "final_round"
	MatchEventForfeit       MatchEvent = "forfeit"
	MatchEventVerdict       MatchEvent = "verdict"
	MatchEventAppeal        MatchEvent = "appeal"
	MatchEventResolveAppeal MatchEvent = "resolve_appeal"
)

var matchTransitions = transitions[MatchStatus, MatchEvent]{
	MatchWaiting: {
		MatchEventAccept:   MatchActive,
		MatchEventDecline:  MatchCancelled,
		MatchEventWithdraw: MatchCancelled,
	},
	MatchActive: {
		MatchEventFinalRound: MatchCompleted,
		MatchEventForfeit:    MatchCompleted,
	},
	MatchCompleted: {
		MatchEventVerdict: MatchVerdictReady,
	},
	MatchVerdictReady: {
		MatchEventAppeal: MatchAppealed,
	},
	MatchAppealed: {
		MatchEventResolveAppeal: MatchVerdictReady,
	},
}

func (s MatchStatus) Next(ev MatchEvent) (MatchStatus, bool) {
	return matchTransitions.next(s, ev)
}

type BeltEvent string

const (
	BeltEventStake   BeltEvent = "stake"
	BeltEventUnstake BeltEvent = "unstake"
	BeltEventVacate  BeltEvent = "vacate"
	BeltEventClaim   BeltEvent = "claim"
)

var beltTransitions = transitions[BeltStatus, BeltEvent]{
	BeltActive: {
		BeltEventStake:  BeltStaked,
		BeltEventVacate: BeltVacant,
	},
	BeltMandatory: {
		BeltEventStake:  BeltStaked,
		BeltEventVacate: BeltVacant,
	},
	BeltGracePeriod: {
		BeltEventStake:  BeltStaked,
		BeltEventVacate: BeltVacant,
	},
	BeltStaked: {
		BeltEventUnstake: BeltActive,
		BeltEventVacate:  BeltVacant,
	},
	BeltVacant: {
		BeltEventClaim: BeltActive,
	},
	BeltInactive: {
		BeltEventClaim: BeltActive,
	},
}

func (s BeltStatus) Next(ev BeltEvent) (BeltStatus, bool) {
	return beltTransitions.next(s, ev)
}

type ChallengeEvent string

const (
	ChallengeEventAccept  ChallengeEvent = "accept"
	ChallengeEventDecline ChallengeEvent = "decline"
	ChallengeEventExpire  ChallengeEvent = "expire"
)

var challengeTransitions = transitions[ChallengeStatus, ChallengeEvent]{
	ChallengePending: {
		ChallengeEventAccept:  ChallengeAccepted,
		ChallengeEventDecline: ChallengeDeclined,
		ChallengeEventExpire:  ChallengeExpired,
	},
}

func (s ChallengeStatus) Next(ev ChallengeEvent) (ChallengeStatus, bool) {
	return challengeTransitions.next(s, ev)
}

type TournamentEvent string

const (
	TournamentEventOpen     TournamentEvent = "open"
	TournamentEventStart    TournamentEvent = "start"
	TournamentEventComplete TournamentEvent = "complete"
	TournamentEventCancel   TournamentEvent = "cancel"
)

var tournamentTransitions = transitions[TournamentStatus, TournamentEvent]{
	TournamentUpcoming: {
		TournamentEventOpen:   TournamentRegistrationOpen,
		TournamentEventCancel: TournamentCancelled,
	},
	TournamentRegistrationOpen: {
		TournamentEventStart:  TournamentInProgress,
		TournamentEventCancel: TournamentCancelled,
	},
	TournamentInProgress: {
		TournamentEventComplete: TournamentCompleted,
	},
}

func (s TournamentStatus) Next(ev TournamentEvent) (TournamentStatus, bool) {
	return tournamentTransitions.next(s, ev)
}

type ParticipantEvent string

const (
	ParticipantEventActivate   ParticipantEvent = "activate"
	ParticipantEventEliminate  ParticipantEvent = "eliminate"
	ParticipantEventDisqualify ParticipantEvent = "disqualify"
)

var participantTransitions = transitions[ParticipantStatus, ParticipantEvent]{
	ParticipantRegistered: {
		ParticipantEventActivate:   ParticipantActive,
		ParticipantEventDisqualify: ParticipantDisqualified,
	},
	ParticipantActive: {
		ParticipantEventEliminate: ParticipantEliminated,
	},
}

func (s ParticipantStatus) Next(ev ParticipantEvent) (ParticipantStatus, bool) {
	return participantTransitions.next(s, ev)
}
