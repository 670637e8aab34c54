package server

import (
	"net/http"

	"neural-garden/internal/domain"
	"neural-garden/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func (s *ArenaServer) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *ArenaServer) listTournaments(w http.ResponseWriter, r *http.Request) {
	ts, err := s.tournaments.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]tournamentView, 0, len(ts))
	for _, t := range ts {
		out = append(out, newTournamentView(t))
	}
	writeJSON(w, http.StatusOK, out)
}

type createTournamentRequest struct {
	Name               string           `json:"name"`
	Mode               domain.Mode      `json:"mode"`
	IsAutoGenerated    bool             `json:"isAutoGenerated"`
	EntryFee           *decimal.Decimal `json:"entryFee"`
	MaxParticipants    int              `json:"maxParticipants"`
	MaxAttempts        int              `json:"maxAttempts"`
	AgentInstructions  string           `json:"agentInstructions"`
	CreatorAddress     string           `json:"creatorAddress"`
	Duration           int              `json:"duration"`
	DebateTopic        string           `json:"debateTopic"`
	SecretTerm         string           `json:"secretTerm"`
	ChallengeStatement string           `json:"challengeStatement"`
}

func (s *ArenaServer) createTournament(w http.ResponseWriter, r *http.Request) {
	var req createTournamentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	in := service.CreateTournamentInput{
		Name:               req.Name,
		Mode:               req.Mode,
		IsAutoGenerated:    req.IsAutoGenerated,
		MaxParticipants:    req.MaxParticipants,
		MaxAttempts:        req.MaxAttempts,
		AgentInstructions:  req.AgentInstructions,
		CreatorAddress:     req.CreatorAddress,
		DurationMinutes:    req.Duration,
		DebateTopic:        req.DebateTopic,
		SecretTerm:         req.SecretTerm,
		ChallengeStatement: req.ChallengeStatement,
	}
	if req.EntryFee != nil {
		in.EntryFee = req.EntryFee.String()
	}

	t, err := s.tournaments.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTournamentView(t))
}

func (s *ArenaServer) getTournament(w http.ResponseWriter, r *http.Request) {
	t, err := s.tournaments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTournamentView(t))
}

type enterRequest struct {
	UserAddress     string `json:"userAddress"`
	TransactionHash string `json:"transactionHash"`
}

func (s *ArenaServer) enter(w http.ResponseWriter, r *http.Request) {
	var req enterRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := s.tournaments.Enter(r.Context(), chi.URLParam(r, "id"), req.UserAddress, req.TransactionHash)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newParticipantView(*p))
}

type chatRequest struct {
	Message     string `json:"message"`
	UserAddress string `json:"userAddress"`
}

func (s *ArenaServer) chatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.chat.Submit(r.Context(), chi.URLParam(r, "id"), req.Message, req.UserAddress)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newChatResponse(res))
}

func (s *ArenaServer) debateEnd(w http.ResponseWriter, r *http.Request) {
	res, err := s.debates.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDebateResponse(res))
}

func (s *ArenaServer) retryPayouts(w http.ResponseWriter, r *http.Request) {
	res, err := s.payouts.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"distribution": res.Distribution,
		"tournament":   newTournamentView(res.Tournament),
	})
}

type challengeRequest struct {
	Attempt string `json:"attempt"`
}

func (s *ArenaServer) challenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Attempt == "" {
		writeError(w, r, domain.Validation("attempt is required"))
		return
	}

	res, err := s.challenges.Attempt(r.Context(), req.Attempt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": res.Success, "message": res.Message})
}

type generateRequest struct {
	Instructions string `json:"instructions"`
}

func (s *ArenaServer) generateChallenge(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	challenge, err := s.challenges.Generate(r.Context(), req.Instructions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"challenge": challenge})
}
