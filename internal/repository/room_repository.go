package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/class_attendance/internal/model"
	"github.com/Freeeeeet/class_attendance/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomRepository struct {
	pool *pgxpool.Pool
}

func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

const roomColumns = `id, name, code, room_type, capacity, building, virtual_platform, default_meeting_link, is_available, created_at`

func scanRoom(row pgx.Row) (*model.Room, error) {
	var room model.Room
	err := row.Scan(
		&room.ID,
		&room.Name,
		&room.Code,
		&room.Type,
		&room.Capacity,
		&room.Building,
		&room.VirtualPlatform,
		&room.DefaultMeetingLink,
		&room.IsAvailable,
		&room.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// GetByID получает аудиторию по ID
func (r *RoomRepository) GetByID(ctx context.Context, id int64) (*model.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`

	room, err := scanRoom(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get room by id: %w", err)
	}
	return room, nil
}

// List возвращает аудитории, отсортированные по коду
func (r *RoomRepository) List(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE ($1 = '' OR room_type = $1)
		  AND (NOT $2 OR is_available)
		ORDER BY code
	`

	rows, err := r.pool.Query(ctx, query, string(filter.Type), filter.AvailableOnly)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]*model.Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}
