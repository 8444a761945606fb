package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"game-slot-scheduler/internal/model"
)

// Request repository errors.
var (
	ErrRequestNotFound = errors.New("request not found")
	// ErrParticipantConflict means a participant already holds an active
	// request on the slot.
	ErrParticipantConflict = errors.New("participant already active on slot")
)

// RequestRepository handles slot requests and their participants.
type RequestRepository struct {
	db DBTX
}

// NewRequestRepository creates a new RequestRepository instance.
func NewRequestRepository(db DBTX) *RequestRepository {
	return &RequestRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *RequestRepository) WithTx(tx pgx.Tx) *RequestRepository {
	return &RequestRepository{db: tx}
}

const requestColumns = `r.id, r.slot_id, r.game_id, r.requested_by, r.status, r.requested_at, r.updated_at`

func scanRequest(row pgx.Row) (*model.GameSlotRequest, error) {
	var req model.GameSlotRequest
	err := row.Scan(
		&req.ID,
		&req.SlotID,
		&req.GameID,
		&req.RequestedBy,
		&req.Status,
		&req.RequestedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Create inserts a Pending request and one participant row per user.
// participants must already be deduplicated and include the requester.
func (r *RequestRepository) Create(ctx context.Context, slotID, gameID, requestedBy int64, participants []int64, requestedAt time.Time) (*model.GameSlotRequest, error) {
	const insertRequest = `
		INSERT INTO game_slot_requests AS r (slot_id, game_id, requested_by, status, requested_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING ` + requestColumns
	const insertParticipant = `
		INSERT INTO game_slot_request_participants (request_id, slot_id, user_id, active)
		VALUES ($1, $2, $3, TRUE)
	`

	req, err := scanRequest(r.db.QueryRow(ctx, insertRequest, slotID, gameID, requestedBy, model.RequestPending, requestedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	batch := &pgx.Batch{}
	for _, uid := range participants {
		batch.Queue(insertParticipant, req.ID, slotID, uid)
	}
	br := r.db.SendBatch(ctx, batch)
	defer br.Close()
	for range participants {
		if _, err := br.Exec(); err != nil {
			if isUniqueViolation(err) {
				return nil, ErrParticipantConflict
			}
			return nil, fmt.Errorf("failed to add request participant: %w", err)
		}
	}

	req.Participants = append([]int64(nil), participants...)
	return req, nil
}

// GetByID retrieves a request with its participants.
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*model.GameSlotRequest, error) {
	const query = `SELECT ` + requestColumns + ` FROM game_slot_requests r WHERE r.id = $1`

	req, err := scanRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	if err := r.attachParticipants(ctx, []*model.GameSlotRequest{req}); err != nil {
		return nil, err
	}
	return req, nil
}

// ListBySlot returns the slot's requests in the given statuses, oldest
// first, with participants.
func (r *RequestRepository) ListBySlot(ctx context.Context, slotID int64, statuses ...model.RequestStatus) ([]*model.GameSlotRequest, error) {
	const query = `
		SELECT ` + requestColumns + `
		FROM game_slot_requests r
		WHERE r.slot_id = $1 AND r.status = ANY($2)
		ORDER BY r.requested_at, r.id
	`

	rows, err := r.db.Query(ctx, query, slotID, statusStrings(statuses))
	if err != nil {
		return nil, fmt.Errorf("failed to list slot requests: %w", err)
	}
	reqs, err := collectRequests(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachParticipants(ctx, reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// ActiveParticipantsAmong returns which of userIDs hold an active
// request on the slot.
func (r *RequestRepository) ActiveParticipantsAmong(ctx context.Context, slotID int64, userIDs []int64) ([]int64, error) {
	const query = `
		SELECT DISTINCT user_id
		FROM game_slot_request_participants
		WHERE slot_id = $1 AND active AND user_id = ANY($2)
		ORDER BY user_id
	`

	rows, err := r.db.Query(ctx, query, slotID, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to look up active participants: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan active participants: %w", err)
	}
	return ids, nil
}

// UpdateStatus sets a request's status. Terminal statuses release the
// participants' active standing on the slot.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id int64, status model.RequestStatus) error {
	const updateRequest = `UPDATE game_slot_requests SET status = $2, updated_at = NOW() WHERE id = $1`
	const release = `UPDATE game_slot_request_participants SET active = FALSE WHERE request_id = $1 AND active`

	tag, err := r.db.Exec(ctx, updateRequest, id, status)
	if err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRequestNotFound
	}

	if !status.Active() {
		if _, err := r.db.Exec(ctx, release, id); err != nil {
			return fmt.Errorf("failed to release request participants: %w", err)
		}
	}
	return nil
}

// ListByUser returns requests the user participates in whose slot starts
// in [from, to), newest slot first.
func (r *RequestRepository) ListByUser(ctx context.Context, userID int64, from, to time.Time) ([]*model.GameSlotRequest, error) {
	const query = `
		SELECT ` + requestColumns + `
		FROM game_slot_requests r
		JOIN game_slots s ON s.id = r.slot_id
		WHERE s.start_time >= $2 AND s.start_time < $3
		  AND EXISTS (
			SELECT 1 FROM game_slot_request_participants p
			WHERE p.request_id = r.id AND p.user_id = $1
		  )
		ORDER BY s.start_time DESC, r.id
	`

	rows, err := r.db.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list user requests: %w", err)
	}
	reqs, err := collectRequests(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachParticipants(ctx, reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

func collectRequests(rows pgx.Rows) ([]*model.GameSlotRequest, error) {
	defer rows.Close()

	var reqs []*model.GameSlotRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating requests: %w", err)
	}
	return reqs, nil
}

// attachParticipants loads participant IDs for reqs with one query.
func (r *RequestRepository) attachParticipants(ctx context.Context, reqs []*model.GameSlotRequest) error {
	if len(reqs) == 0 {
		return nil
	}

	const query = `
		SELECT request_id, user_id
		FROM game_slot_request_participants
		WHERE request_id = ANY($1)
		ORDER BY request_id, user_id
	`

	ids := make([]int64, len(reqs))
	byID := make(map[int64]*model.GameSlotRequest, len(reqs))
	for i, req := range reqs {
		ids[i] = req.ID
		byID[req.ID] = req
		req.Participants = nil
	}

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to load request participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var reqID, userID int64
		if err := rows.Scan(&reqID, &userID); err != nil {
			return fmt.Errorf("failed to scan request participant: %w", err)
		}
		if req, ok := byID[reqID]; ok {
			req.Participants = append(req.Participants, userID)
		}
	}
	return rows.Err()
}

func statusStrings[S ~string](statuses []S) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
