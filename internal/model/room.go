package model

import "time"

type RoomType string

const (
	RoomTypePhysical RoomType = "physical"
	RoomTypeVirtual  RoomType = "virtual"
)

// Room is a registered place a session can be held in, physical or virtual.
type Room struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Code               string    `json:"code"`
	Type               RoomType  `json:"type"`
	Capacity           *int      `json:"capacity,omitempty"`
	Building           string    `json:"building,omitempty"`
	VirtualPlatform    string    `json:"virtual_platform,omitempty"` // zoom, teams, meet, webex, other
	DefaultMeetingLink string    `json:"default_meeting_link,omitempty"`
	IsAvailable        bool      `json:"is_available"`
	CreatedAt          time.Time `json:"created_at"`
}

func (r *Room) IsVirtual() bool {
	return r.Type == RoomTypeVirtual
}

// RoomFilter narrows a room listing. Zero values mean "any".
type RoomFilter struct {
	Type          RoomType
	AvailableOnly bool
}
