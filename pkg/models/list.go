package models

import "time"

// List is an ordered column of cards within a board. Position is a gap-based
// sort key, unique by convention within the board.
type List struct {
    ID        string    `json:"id" db:"id"`
    BoardID   string    `json:"board_id" db:"board_id"`
    Name      string    `json:"name" db:"name"`
    Position  int64     `json:"position" db:"position"`
    CreatedAt time.Time `json:"created_at" db:"created_at"`
    UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
