package models

// Todo is a shared checklist entry; both roles may edit or delete it.
type Todo struct {
	ID        string `json:"-"`
	Title     string `json:"title"`
	DueAt     *int64 `json:"dueAt,omitempty"`
	CreatedBy Role   `json:"createdBy"`
	CreatedAt int64  `json:"createdAt"`
	DoneAt    *int64 `json:"doneAt,omitempty"`
}

// Done reports whether the todo has been checked off.
func (t Todo) Done() bool {
	return t.DoneAt != nil
}
