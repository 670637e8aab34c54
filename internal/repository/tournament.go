package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"neural-garden/internal/domain"

	"github.com/rs/zerolog"
)

type TournamentRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewTournamentRepository(sqlDB *sql.DB, logger zerolog.Logger) *TournamentRepository {
	return &TournamentRepository{db: sqlDB, logger: logger}
}

const tournamentColumns = `id, name, slug, mode, secret_term, debate_topic, challenge_statement,
	agent_instructions, is_auto_generated, entry_fee_wei, max_participants, current_participants,
	max_attempts, treasury_address, wallet_credential, creator_address, status, prizes_distributed,
	category, ends_at, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *TournamentRepository) Create(ctx context.Context, t *domain.Tournament) error {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Version == 0 {
		t.Version = 1
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Persistence("failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO tournaments (`+tournamentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Slug, string(t.Mode), t.SecretTerm, t.DebateTopic, t.ChallengeStatement,
		t.AgentInstructions, t.IsAutoGenerated, weiString(t.EntryFeeWei), t.MaxParticipants, t.CurrentParticipants,
		t.MaxAttempts, t.TreasuryAddress, t.WalletCredential, t.CreatorAddress, string(t.Status), t.PrizesDistributed,
		t.Category, nullTime(t.EndsAt), t.Version, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("tournament_id", t.ID).Msg("failed to insert tournament")
		return domain.Persistence("failed to create tournament", err)
	}

	if err := r.writeChildren(ctx, tx, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.Persistence("failed to commit tournament", err)
	}

	r.logger.Debug().Str("tournament_id", t.ID).Str("mode", string(t.Mode)).Msg("tournament created")
	return nil
}

func (r *TournamentRepository) Get(ctx context.Context, id string) (*domain.Tournament, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tournamentColumns+` FROM tournaments WHERE id = ?`, id)
	t, err := scanTournament(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("Tournament not found")
	}
	if err != nil {
		r.logger.Error().Err(err).Str("tournament_id", id).Msg("failed to get tournament")
		return nil, domain.Persistence("failed to load tournament", err)
	}

	if t.Participants, err = r.participants(ctx, id); err != nil {
		return nil, err
	}
	if t.Messages, err = r.messages(ctx, id); err != nil {
		return nil, err
	}
	if t.Winners, err = r.winners(ctx, id); err != nil {
		return nil, err
	}
	return t, nil
}

// List returns tournaments newest first, with participants and winners but no transcript.
func (r *TournamentRepository) List(ctx context.Context, limit int) ([]*domain.Tournament, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+tournamentColumns+` FROM tournaments ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, domain.Persistence("failed to list tournaments", err)
	}

	var out []*domain.Tournament
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			rows.Close()
			return nil, domain.Persistence("failed to scan tournament", err)
		}
		out = append(out, t)
	}
	if err := rows.Close(); err != nil {
		return nil, domain.Persistence("failed to list tournaments", err)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("failed to list tournaments", err)
	}

	for _, t := range out {
		if t.Participants, err = r.participants(ctx, t.ID); err != nil {
			return nil, err
		}
		if t.Winners, err = r.winners(ctx, t.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Save writes the whole tournament document if nobody else saved it since it was loaded.
// A stale version yields a conflict and nothing is written.
func (r *TournamentRepository) Save(ctx context.Context, t *domain.Tournament) error {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Persistence("failed to begin transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE tournaments SET
			name = ?, slug = ?, secret_term = ?, debate_topic = ?, challenge_statement = ?,
			agent_instructions = ?, current_participants = ?, status = ?, prizes_distributed = ?,
			category = ?, ends_at = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		t.Name, t.Slug, t.SecretTerm, t.DebateTopic, t.ChallengeStatement,
		t.AgentInstructions, t.CurrentParticipants, string(t.Status), t.PrizesDistributed,
		t.Category, nullTime(t.EndsAt), now,
		t.ID, t.Version,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("tournament_id", t.ID).Msg("failed to update tournament")
		return domain.Persistence("failed to save tournament", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Persistence("failed to save tournament", err)
	}
	if n == 0 {
		r.logger.Warn().Str("tournament_id", t.ID).Int64("version", t.Version).Msg("stale tournament version")
		return domain.Conflict("Tournament was modified concurrently, retry the request")
	}

	if err := r.writeChildren(ctx, tx, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.Persistence("failed to commit tournament", err)
	}

	t.Version++
	t.UpdatedAt = now
	return nil
}

func (r *TournamentRepository) writeChildren(ctx context.Context, tx *sql.Tx, t *domain.Tournament) error {
	for _, p := range t.Participants {
		_, err := tx.ExecContext(ctx, `INSERT INTO participants
				(tournament_id, address, attempts_left, has_guessed_correct, has_completed, guess_count, entry_tx_hash, joined_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (tournament_id, address) DO UPDATE SET
				attempts_left = excluded.attempts_left,
				has_guessed_correct = excluded.has_guessed_correct,
				has_completed = excluded.has_completed,
				guess_count = excluded.guess_count`,
			t.ID, p.Address, p.AttemptsLeft, p.HasGuessedCorrect, p.HasCompleted, p.GuessCount, p.EntryTxHash, p.JoinedAt,
		)
		if err != nil {
			r.logger.Error().Err(err).Str("tournament_id", t.ID).Str("address", p.Address).Msg("failed to write participant")
			return domain.Persistence("failed to save participant", err)
		}
	}

	// the transcript is append-only: only rows past the stored tail are inserted
	var lastSeq int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM messages WHERE tournament_id = ?`, t.ID).Scan(&lastSeq); err != nil {
		return domain.Persistence("failed to read transcript tail", err)
	}
	for _, m := range t.Messages {
		if m.Seq <= lastSeq {
			continue
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO messages
				(tournament_id, seq, role, content, sender_address, recipient_address, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.ID, m.Seq, string(m.Role), m.Content, m.SenderAddress, m.RecipientAddress, m.Timestamp,
		)
		if err != nil {
			return domain.Persistence("failed to append message", err)
		}
	}

	for _, w := range t.Winners {
		_, err := tx.ExecContext(ctx, `INSERT INTO winners
				(tournament_id, rank, address, prize_wei, tx_hash, payout_status, payout_error, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (tournament_id, rank) DO UPDATE SET
				tx_hash = excluded.tx_hash,
				payout_status = excluded.payout_status,
				payout_error = excluded.payout_error,
				updated_at = excluded.updated_at`,
			t.ID, w.Rank, w.Address, weiString(w.PrizeWei), w.TxHash, string(w.PayoutStatus), w.PayoutError, w.UpdatedAt,
		)
		if err != nil {
			return domain.Persistence("failed to save winner", err)
		}
	}
	return nil
}

// ExpiredIDs returns ids of tournaments in mode that are still active past their end time.
func (r *TournamentRepository) ExpiredIDs(ctx context.Context, mode domain.Mode, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM tournaments
		WHERE mode = ? AND status = ? AND ends_at IS NOT NULL AND ends_at <= ?
		ORDER BY ends_at`, string(mode), string(domain.StatusActive), now.UTC())
	if err != nil {
		return nil, domain.Persistence("failed to query expired tournaments", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.Persistence("failed to scan tournament id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *TournamentRepository) EntryTxUsed(ctx context.Context, txHash string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants WHERE entry_tx_hash = ?`, txHash).Scan(&n)
	if err != nil {
		return false, domain.Persistence("failed to check entry transaction", err)
	}
	return n > 0, nil
}

func (r *TournamentRepository) participants(ctx context.Context, id string) ([]domain.Participant, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT address, attempts_left, has_guessed_correct, has_completed,
			guess_count, entry_tx_hash, joined_at
		FROM participants WHERE tournament_id = ? ORDER BY joined_at, address`, id)
	if err != nil {
		return nil, domain.Persistence("failed to load participants", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.Address, &p.AttemptsLeft, &p.HasGuessedCorrect, &p.HasCompleted,
			&p.GuessCount, &p.EntryTxHash, &p.JoinedAt); err != nil {
			return nil, domain.Persistence("failed to scan participant", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *TournamentRepository) messages(ctx context.Context, id string) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT seq, role, content, sender_address, recipient_address, created_at
		FROM messages WHERE tournament_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, domain.Persistence("failed to load messages", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		var role string
		if err := rows.Scan(&m.Seq, &role, &m.Content, &m.SenderAddress, &m.RecipientAddress, &m.Timestamp); err != nil {
			return nil, domain.Persistence("failed to scan message", err)
		}
		m.Role = domain.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *TournamentRepository) winners(ctx context.Context, id string) ([]domain.Winner, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT rank, address, prize_wei, tx_hash, payout_status, payout_error, updated_at
		FROM winners WHERE tournament_id = ? ORDER BY rank`, id)
	if err != nil {
		return nil, domain.Persistence("failed to load winners", err)
	}
	defer rows.Close()

	var out []domain.Winner
	for rows.Next() {
		var w domain.Winner
		var prize, status string
		if err := rows.Scan(&w.Rank, &w.Address, &prize, &w.TxHash, &status, &w.PayoutError, &w.UpdatedAt); err != nil {
			return nil, domain.Persistence("failed to scan winner", err)
		}
		if w.PrizeWei, err = parseWei(prize); err != nil {
			return nil, domain.Persistence("corrupt winner prize", err)
		}
		w.PayoutStatus = domain.PayoutStatus(status)
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanTournament(row rowScanner) (*domain.Tournament, error) {
	var (
		t      domain.Tournament
		mode   string
		status string
		fee    string
		endsAt sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.Name, &t.Slug, &mode, &t.SecretTerm, &t.DebateTopic, &t.ChallengeStatement,
		&t.AgentInstructions, &t.IsAutoGenerated, &fee, &t.MaxParticipants, &t.CurrentParticipants,
		&t.MaxAttempts, &t.TreasuryAddress, &t.WalletCredential, &t.CreatorAddress, &status, &t.PrizesDistributed,
		&t.Category, &endsAt, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Mode = domain.Mode(mode)
	t.Status = domain.Status(status)
	if t.EntryFeeWei, err = parseWei(fee); err != nil {
		return nil, err
	}
	if endsAt.Valid {
		ends := endsAt.Time
		t.EndsAt = &ends
	}
	return &t, nil
}

func weiString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseWei(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid wei amount %q", s)
	}
	return v, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
