package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat_server/internal/domain"
	apperrors "chat_server/pkg/errors"
	"chat_server/pkg/logger"
)

type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Room, error)
	Update(ctx context.Context, room *domain.Room) error
	Delete(ctx context.Context, id uuid.UUID) error
	SetLastMessage(ctx context.Context, roomID, messageID uuid.UUID) error
	AddParticipant(ctx context.Context, participant *domain.RoomParticipant) error
	RemoveParticipant(ctx context.Context, roomID, userID uuid.UUID) error
	IsParticipant(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
	GetParticipants(ctx context.Context, roomID uuid.UUID) ([]*domain.RoomParticipant, error)
}

type roomRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewRoomRepository(db *pgxpool.Pool, log logger.Logger) RoomRepository {
	return &roomRepository{db: db, log: log}
}

func (r *roomRepository) Create(ctx context.Context, room *domain.Room) error {
	// Room plus its author's participant row in one transaction: the
	// author-is-always-a-participant invariant must hold from birth.
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.log.Error("failed to begin transaction", "error", err)
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO rooms (id, name, avatar_url, author_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		room.ID, room.Name, room.AvatarURL, room.AuthorID, room.CreatedAt, room.UpdatedAt,
	).Scan(&room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		r.log.Error("failed to create room", "error", err)
		return err
	}

	participantQuery := `
		INSERT INTO room_participants (room_id, user_id, joined_at)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.Exec(ctx, participantQuery, room.ID, room.AuthorID, time.Now()); err != nil {
		r.log.Error("failed to add author as participant", "error", err, "room_id", room.ID)
		return err
	}

	return tx.Commit(ctx)
}

func (r *roomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	query := `
		SELECT id, name, avatar_url, author_id, last_message_id, created_at, updated_at
		FROM rooms
		WHERE id = $1
	`

	room := &domain.Room{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&room.ID, &room.Name, &room.AvatarURL, &room.AuthorID,
		&room.LastMessageID, &room.CreatedAt, &room.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrRoomNotFound
		}
		r.log.Error("failed to get room", "error", err, "room_id", id)
		return nil, err
	}

	return room, nil
}

func (r *roomRepository) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Room, error) {
	query := `
		SELECT r.id, r.name, r.avatar_url, r.author_id, r.last_message_id, r.created_at, r.updated_at
		FROM rooms r
		JOIN room_participants p ON p.room_id = r.id
		WHERE p.user_id = $1
		ORDER BY r.updated_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		r.log.Error("failed to list rooms", "error", err, "user_id", userID)
		return nil, err
	}
	defer rows.Close()

	var rooms []*domain.Room
	for rows.Next() {
		room := &domain.Room{}
		err := rows.Scan(
			&room.ID, &room.Name, &room.AvatarURL, &room.AuthorID,
			&room.LastMessageID, &room.CreatedAt, &room.UpdatedAt,
		)
		if err != nil {
			r.log.Error("failed to scan room", "error", err)
			return nil, err
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (r *roomRepository) Update(ctx context.Context, room *domain.Room) error {
	query := `
		UPDATE rooms
		SET name = $2, avatar_url = $3, updated_at = $4
		WHERE id = $1
	`

	room.UpdatedAt = time.Now()
	tag, err := r.db.Exec(ctx, query, room.ID, room.Name, room.AvatarURL, room.UpdatedAt)
	if err != nil {
		r.log.Error("failed to update room", "error", err, "room_id", room.ID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrRoomNotFound
	}

	return nil
}

func (r *roomRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		r.log.Error("failed to delete room", "error", err, "room_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrRoomNotFound
	}

	return nil
}

func (r *roomRepository) SetLastMessage(ctx context.Context, roomID, messageID uuid.UUID) error {
	query := `
		UPDATE rooms
		SET last_message_id = $2, updated_at = now()
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, roomID, messageID)
	if err != nil {
		r.log.Error("failed to set last message", "error", err, "room_id", roomID)
		return err
	}

	return nil
}

func (r *roomRepository) AddParticipant(ctx context.Context, participant *domain.RoomParticipant) error {
	query := `
		INSERT INTO room_participants (room_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (room_id, user_id) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query, participant.RoomID, participant.UserID, participant.JoinedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return apperrors.ErrRoomNotFound
		}
		r.log.Error("failed to add participant", "error", err, "room_id", participant.RoomID)
		return err
	}

	return nil
}

func (r *roomRepository) RemoveParticipant(ctx context.Context, roomID, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM room_participants WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	if err != nil {
		r.log.Error("failed to remove participant", "error", err, "room_id", roomID, "user_id", userID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotParticipant
	}

	return nil
}

func (r *roomRepository) IsParticipant(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM room_participants WHERE room_id = $1 AND user_id = $2
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, roomID, userID).Scan(&exists); err != nil {
		r.log.Error("failed to check participant", "error", err, "room_id", roomID, "user_id", userID)
		return false, err
	}

	return exists, nil
}

func (r *roomRepository) GetParticipants(ctx context.Context, roomID uuid.UUID) ([]*domain.RoomParticipant, error) {
	query := `
		SELECT p.room_id, p.user_id, u.username, p.joined_at
		FROM room_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.room_id = $1
		ORDER BY p.joined_at
	`

	rows, err := r.db.Query(ctx, query, roomID)
	if err != nil {
		r.log.Error("failed to get participants", "error", err, "room_id", roomID)
		return nil, err
	}
	defer rows.Close()

	var participants []*domain.RoomParticipant
	for rows.Next() {
		p := &domain.RoomParticipant{}
		if err := rows.Scan(&p.RoomID, &p.UserID, &p.Username, &p.JoinedAt); err != nil {
			r.log.Error("failed to scan participant", "error", err)
			return nil, err
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}
