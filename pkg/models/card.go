package models

import "time"

// Card is the atomic unit of work. BoardID is denormalized from the owning
// list and must equal the list's board at all times; any list change updates
// it in the same write.
type Card struct {
    ID          string    `json:"id" db:"id"`
    ListID      string    `json:"list_id" db:"list_id"`
    BoardID     string    `json:"board_id" db:"board_id"`
    Title       string    `json:"title" db:"title"`
    Description string    `json:"description,omitempty" db:"description"`
    Position    int64     `json:"position" db:"position"`
    CreatedAt   time.Time `json:"created_at" db:"created_at"`
    UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
