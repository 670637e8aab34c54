package server

import (
	"context"
	"net/http"

	"neural-garden/internal/domain"
	"neural-garden/internal/metrics"
	"neural-garden/internal/middleware"
	"neural-garden/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type tournamentAPI interface {
	Create(ctx context.Context, in service.CreateTournamentInput) (*domain.Tournament, error)
	List(ctx context.Context) ([]*domain.Tournament, error)
	Get(ctx context.Context, id string) (*domain.Tournament, error)
	Enter(ctx context.Context, id, userAddress, txHash string) (*domain.Participant, error)
}

type chatAPI interface {
	Submit(ctx context.Context, tournamentID, message, userAddress string) (*service.ChatResult, error)
}

type debateAPI interface {
	Resolve(ctx context.Context, tournamentID string) (*service.DebateResult, error)
}

type payoutAPI interface {
	Retry(ctx context.Context, tournamentID string) (*service.PayoutResult, error)
}

type challengeAPI interface {
	Attempt(ctx context.Context, attempt string) (*service.ChallengeResult, error)
	Generate(ctx context.Context, instructions string) (string, error)
}

// ArenaServer exposes the tournament services over JSON HTTP.
type ArenaServer struct {
	tournaments tournamentAPI
	chat        chatAPI
	debates     debateAPI
	payouts     payoutAPI
	challenges  challengeAPI
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

func NewArenaServer(
	tournaments *service.TournamentService,
	chat *service.ChatService,
	debates *service.DebateService,
	payouts *service.PayoutService,
	challenges *service.ChallengeService,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *ArenaServer {
	return &ArenaServer{
		tournaments: tournaments,
		chat:        chat,
		debates:     debates,
		payouts:     payouts,
		challenges:  challenges,
		metrics:     m,
		logger:      logger,
	}
}

func (s *ArenaServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID(s.logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/tournaments", func(r chi.Router) {
		r.Get("/", s.listTournaments)
		r.Post("/", s.createTournament)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getTournament)
			r.Post("/enter", s.enter)
			r.Post("/chat", s.chatMessage)
			r.Post("/debateEnd", s.debateEnd)
			r.Post("/payouts/retry", s.retryPayouts)
		})
	})
	r.Post("/arena/{id}/chat", s.chatMessage)

	r.Post("/challenge", s.challenge)
	r.Post("/generate-challenge", s.generateChallenge)

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Route not found"})
	})
	return r
}
