package models

// RoomStats is a point-in-time view of the live relay state.
type RoomStats struct {
	ActiveRooms       int `json:"active_rooms"`
	ResidentRooms     int `json:"resident_rooms"`
	Connections       int `json:"connections"`
	ReactionHistories int `json:"reaction_histories"`
}
