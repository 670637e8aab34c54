package domain

import (
	"math/big"
	"strings"
	"time"
)

type Mode string

const (
	ModeRiddle          Mode = "RIDDLE"
	ModeTwentyQuestions Mode = "TWENTY_QUESTIONS"
	ModeDebateArena     Mode = "DEBATE_ARENA"
	ModeAgentChallenge  Mode = "AGENT_CHALLENGE"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeRiddle, ModeTwentyQuestions, ModeDebateArena, ModeAgentChallenge:
		return true
	}
	return false
}

// PayoutCutoff is the maximum number of paid ranks for the mode.
func (m Mode) PayoutCutoff() int {
	switch m {
	case ModeTwentyQuestions:
		return 3
	case ModeDebateArena:
		return 5
	case ModeRiddle, ModeAgentChallenge:
		return 1
	}
	return 0
}

func (m Mode) DefaultAttempts() int {
	switch m {
	case ModeRiddle:
		return 3
	case ModeTwentyQuestions:
		return 20
	case ModeDebateArena:
		return 10
	case ModeAgentChallenge:
		return 5
	}
	return 0
}

// ConsumesAttemptPerMessage reports whether every submission costs an attempt,
// as opposed to only successful ones.
func (m Mode) ConsumesAttemptPerMessage() bool {
	return m == ModeTwentyQuestions
}

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusResolving Status = "RESOLVING"
	StatusCompleted Status = "COMPLETED"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "PENDING"
	PayoutFailed    PayoutStatus = "FAILED"
	PayoutSucceeded PayoutStatus = "SUCCEEDED"
)

type DistributionStatus string

const (
	DistributionNone      DistributionStatus = "NONE"
	DistributionPending   DistributionStatus = "PENDING"
	DistributionFailed    DistributionStatus = "FAILED"
	DistributionSucceeded DistributionStatus = "SUCCEEDED"
)

type Tournament struct {
	ID                  string
	Name                string
	Slug                string
	Mode                Mode
	SecretTerm          string
	DebateTopic         string
	ChallengeStatement  string
	AgentInstructions   string
	IsAutoGenerated     bool
	EntryFeeWei         *big.Int
	MaxParticipants     int
	CurrentParticipants int
	MaxAttempts         int
	TreasuryAddress     string
	WalletCredential    []byte
	CreatorAddress      string
	Status              Status
	PrizesDistributed   bool
	Category            string
	EndsAt              *time.Time
	Version             int64
	Participants        []Participant
	Messages            []Message
	Winners             []Winner
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (t *Tournament) Participant(address string) *Participant {
	address = NormalizeAddress(address)
	for i := range t.Participants {
		if t.Participants[i].Address == address {
			return &t.Participants[i]
		}
	}
	return nil
}

func (t *Tournament) Winner(address string) *Winner {
	address = NormalizeAddress(address)
	for i := range t.Winners {
		if t.Winners[i].Address == address {
			return &t.Winners[i]
		}
	}
	return nil
}

func (t *Tournament) AllPayoutsSucceeded() bool {
	for _, w := range t.Winners {
		if w.PayoutStatus != PayoutSucceeded {
			return false
		}
	}
	return true
}

// AttemptsExhausted is true once every participant has spent their budget.
func (t *Tournament) AttemptsExhausted() bool {
	if len(t.Participants) == 0 {
		return false
	}
	for _, p := range t.Participants {
		if p.AttemptsLeft > 0 {
			return false
		}
	}
	return true
}

func (t *Tournament) Expired(now time.Time) bool {
	return t.EndsAt != nil && !now.Before(*t.EndsAt)
}

type Participant struct {
	Address           string
	AttemptsLeft      int
	HasGuessedCorrect bool
	HasCompleted      bool
	GuessCount        int
	EntryTxHash       string
	JoinedAt          time.Time
}

type Message struct {
	Seq              int
	Role             Role
	Content          string
	SenderAddress    string
	RecipientAddress string
	Timestamp        time.Time
}

type Winner struct {
	Address      string
	Rank         int
	PrizeWei     *big.Int
	TxHash       string
	PayoutStatus PayoutStatus
	PayoutError  string
	UpdatedAt    time.Time
}

type StoredBlobRecord struct {
	ID           string
	TournamentID string
	Category     string
	BlobID       string
	CreatedAt    time.Time
}

func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
