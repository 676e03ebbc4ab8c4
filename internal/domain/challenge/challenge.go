// Package challenge models the read-mostly Challenge/Participant records
// owned by the challenge registry. The financial core only writes
// Status and the stake/payout linkage; everything else (title, proof
// rules, verification) belongs to the peripheral challenge CRUD system.
package challenge

import (
	"time"

	"github.com/google/uuid"

	"github.com/peerpush/chally/internal/domain/money"
)

// Status is the lifecycle state of a Challenge. SETTLED and CANCELLED are
// terminal; no further status transition is valid from either.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusSettled   Status = "SETTLED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether s can no longer transition.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusCancelled
}

// Challenge is the subset of challenge-registry state the financial core
// needs to settle a pool. CreatorID and VerificationThreshold are carried
// for completeness but not consulted by the settlement algorithm itself.
type Challenge struct {
	ID                    uuid.UUID
	CreatorID             uuid.UUID
	Stake                 money.Tokens
	MaxParticipants       *int
	StartAt               time.Time
	EndAt                 time.Time
	Status                Status
	VerificationThreshold int
}

// ParticipantStatus is the verification outcome of one participant.
type ParticipantStatus string

const (
	ParticipantJoined    ParticipantStatus = "JOINED"
	ParticipantCompleted ParticipantStatus = "COMPLETED"
	ParticipantFailed    ParticipantStatus = "FAILED"
)

// Participant links one user to one challenge via the STAKE ledger entry
// created at join time.
type Participant struct {
	ID                 uuid.UUID
	ChallengeID         uuid.UUID
	UserID             uuid.UUID
	Status             ParticipantStatus
	JoinedAt           time.Time
	StakeLedgerEntryID uuid.UUID
}

// Won reports whether p should receive a payout share at settlement.
func (p Participant) Won() bool {
	return p.Status == ParticipantCompleted
}
