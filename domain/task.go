package domain

// Task is a single board item. The id is assigned once by the relay's task
// store when the task is created and uniquely identifies it for the
// lifetime of the server process; it is never reused, even after deletion.
// LastModifiedBy is re-stamped with the acting username on every accepted
// mutation.
type Task struct {
	ID             int    `json:"id"`
	Description    string `json:"description"`
	Completed      bool   `json:"completed"`
	LastModifiedBy string `json:"lastModifiedBy"`
}
