package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/class_attendance/internal/model"
	"go.uber.org/zap"
)

type RoomService struct {
	rooms  RoomStore
	logger *zap.Logger
}

func NewRoomService(rooms RoomStore, logger *zap.Logger) *RoomService {
	return &RoomService{rooms: rooms, logger: logger}
}

// List возвращает аудитории по фильтру
func (s *RoomService) List(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error) {
	rooms, err := s.rooms.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}
