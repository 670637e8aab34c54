package server

import (
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"time"

	"neural-garden/internal/domain"
	"neural-garden/internal/prize"
	"neural-garden/internal/service"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.Validation("invalid request body")
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrExternalService):
		if domain.Retryable(err) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	ev := zerolog.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		ev = zerolog.Ctx(r.Context()).Error()
	}
	ev.Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, status, errorBody{Error: domain.PublicMessage(err)})
}

type participantView struct {
	Address           string    `json:"address"`
	AttemptsLeft      int       `json:"attemptsLeft"`
	HasGuessedCorrect bool      `json:"hasGuessedCorrect"`
	HasCompleted      bool      `json:"hasCompleted"`
	GuessCount        int       `json:"guessCount"`
	EntryTxHash       string    `json:"entryTxHash,omitempty"`
	JoinedAt          time.Time `json:"joinedAt"`
}

type messageView struct {
	Role             domain.Role `json:"role"`
	Content          string      `json:"content"`
	SenderAddress    string      `json:"senderAddress"`
	RecipientAddress string      `json:"recipientAddress"`
	Timestamp        time.Time   `json:"timestamp"`
}

type winnerView struct {
	Address      string              `json:"address"`
	Rank         int                 `json:"rank"`
	Prize        string              `json:"prize"`
	PrizeWei     string              `json:"prizeWei"`
	TxHash       string              `json:"txHash,omitempty"`
	PayoutStatus domain.PayoutStatus `json:"payoutStatus"`
	PayoutError  string              `json:"payoutError,omitempty"`
}

// tournamentView never carries the secret term or the wallet credential.
type tournamentView struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	Slug                string            `json:"slug"`
	Mode                domain.Mode       `json:"mode"`
	ChallengeStatement  string            `json:"challengeStatement"`
	DebateTopic         string            `json:"debateTopic,omitempty"`
	AgentInstructions   string            `json:"agentInstructions,omitempty"`
	IsAutoGenerated     bool              `json:"isAutoGenerated"`
	EntryFee            string            `json:"entryFee"`
	EntryFeeWei         string            `json:"entryFeeWei"`
	MaxParticipants     int               `json:"maxParticipants"`
	CurrentParticipants int               `json:"currentParticipants"`
	MaxAttempts         int               `json:"maxAttempts"`
	WalletAddress       string            `json:"walletAddress"`
	CreatorAddress      string            `json:"creatorAddress,omitempty"`
	Status              domain.Status     `json:"status"`
	PrizesDistributed   bool              `json:"prizesDistributed"`
	Category            string            `json:"category,omitempty"`
	EndsAt              *time.Time        `json:"endsAt,omitempty"`
	Participants        []participantView `json:"participants"`
	Messages            []messageView     `json:"messages,omitempty"`
	Winners             []winnerView      `json:"winners"`
	CreatedAt           time.Time         `json:"createdAt"`
}

func newParticipantView(p domain.Participant) participantView {
	return participantView{
		Address:           p.Address,
		AttemptsLeft:      p.AttemptsLeft,
		HasGuessedCorrect: p.HasGuessedCorrect,
		HasCompleted:      p.HasCompleted,
		GuessCount:        p.GuessCount,
		EntryTxHash:       p.EntryTxHash,
		JoinedAt:          p.JoinedAt,
	}
}

func newWinnerViews(ws []domain.Winner) []winnerView {
	out := make([]winnerView, 0, len(ws))
	for _, w := range ws {
		out = append(out, winnerView{
			Address:      w.Address,
			Rank:         w.Rank,
			Prize:        prize.FormatEther(w.PrizeWei),
			PrizeWei:     weiString(w.PrizeWei),
			TxHash:       w.TxHash,
			PayoutStatus: w.PayoutStatus,
			PayoutError:  w.PayoutError,
		})
	}
	return out
}

func newTournamentView(t *domain.Tournament) tournamentView {
	v := tournamentView{
		ID:                  t.ID,
		Name:                t.Name,
		Slug:                t.Slug,
		Mode:                t.Mode,
		ChallengeStatement:  t.ChallengeStatement,
		DebateTopic:         t.DebateTopic,
		AgentInstructions:   t.AgentInstructions,
		IsAutoGenerated:     t.IsAutoGenerated,
		EntryFee:            prize.FormatEther(t.EntryFeeWei),
		EntryFeeWei:         weiString(t.EntryFeeWei),
		MaxParticipants:     t.MaxParticipants,
		CurrentParticipants: t.CurrentParticipants,
		MaxAttempts:         t.MaxAttempts,
		WalletAddress:       t.TreasuryAddress,
		CreatorAddress:      t.CreatorAddress,
		Status:              t.Status,
		PrizesDistributed:   t.PrizesDistributed,
		Category:            t.Category,
		EndsAt:              t.EndsAt,
		Participants:        make([]participantView, 0, len(t.Participants)),
		Winners:             newWinnerViews(t.Winners),
		CreatedAt:           t.CreatedAt,
	}
	for _, p := range t.Participants {
		v.Participants = append(v.Participants, newParticipantView(p))
	}
	for _, m := range t.Messages {
		v.Messages = append(v.Messages, messageView{
			Role:             m.Role,
			Content:          m.Content,
			SenderAddress:    m.SenderAddress,
			RecipientAddress: m.RecipientAddress,
			Timestamp:        m.Timestamp,
		})
	}
	return v
}

type distributionView struct {
	Status    domain.DistributionStatus `json:"status"`
	Amount    string                    `json:"amount,omitempty"`
	AmountWei string                    `json:"amountWei,omitempty"`
	TxHash    string                    `json:"txHash,omitempty"`
	Error     string                    `json:"error,omitempty"`
}

func newDistributionView(d service.Distribution) distributionView {
	v := distributionView{Status: d.Status, TxHash: d.TxHash, Error: d.Error}
	if d.Status != domain.DistributionNone && d.AmountWei != nil {
		v.Amount = prize.FormatEther(d.AmountWei)
		v.AmountWei = d.AmountWei.String()
	}
	return v
}

// prizeDistributedView mirrors the legacy chat payload read by older clients.
type prizeDistributedView struct {
	Amount string `json:"amount"`
	TxHash string `json:"txHash"`
}

type chatResponse struct {
	Message          string                `json:"message"`
	Success          bool                  `json:"success"`
	AttemptsLeft     int                   `json:"attemptsLeft"`
	Distribution     distributionView      `json:"distribution"`
	PrizeDistributed *prizeDistributedView `json:"prizeDistributed,omitempty"`
}

func newChatResponse(res *service.ChatResult) chatResponse {
	out := chatResponse{
		Message:      res.Message,
		Success:      res.Success,
		AttemptsLeft: res.AttemptsLeft,
		Distribution: newDistributionView(res.Distribution),
	}
	if res.Distribution.Status == domain.DistributionSucceeded {
		out.PrizeDistributed = &prizeDistributedView{Amount: out.Distribution.Amount, TxHash: res.Distribution.TxHash}
	}
	return out
}

type debateResponse struct {
	Message         string                    `json:"message"`
	Winners         []winnerView              `json:"winners"`
	Category        string                    `json:"category"`
	BlobID          string                    `json:"blobId,omitempty"`
	ArchiveError    string                    `json:"archiveError,omitempty"`
	Distribution    domain.DistributionStatus `json:"distribution"`
	AlreadyResolved bool                      `json:"alreadyResolved,omitempty"`
}

func newDebateResponse(res *service.DebateResult) debateResponse {
	return debateResponse{
		Message:         res.Message,
		Winners:         newWinnerViews(res.Tournament.Winners),
		Category:        res.Category,
		BlobID:          res.BlobID,
		ArchiveError:    res.ArchiveError,
		Distribution:    res.Distribution,
		AlreadyResolved: res.AlreadyResolved,
	}
}

func weiString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
