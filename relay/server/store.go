package server

import (
	"sync"

	"taskboard/domain"
)

// TaskStore is the authoritative ordered task collection. All operations
// are atomic: readers observe either the pre- or the post-mutation value,
// never a partial update. Ids increase monotonically and are never reused,
// even after a delete.
type TaskStore struct {
	mu     sync.Mutex
	nextID int
	order  []int
	tasks  map[int]domain.Task
}

func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[int]domain.Task)}
}

// Add creates a task with the next id, appended at the end of the
// collection, and returns the stored value.
func (s *TaskStore) Add(description, author string) domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	task := domain.Task{ID: s.nextID, Description: description, LastModifiedBy: author}
	s.tasks[task.ID] = task
	s.order = append(s.order, task.ID)
	return task
}

// Update overwrites description, completed flag and author in place and
// returns the new value, or domain.ErrNotFound for an unknown id.
func (s *TaskStore) Update(id int, description string, completed bool, author string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	task.Description = description
	task.Completed = completed
	task.LastModifiedBy = author
	s.tasks[id] = task
	return task, nil
}

// Delete removes the task with the given id, or returns domain.ErrNotFound.
func (s *TaskStore) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.tasks, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Snapshot returns the tasks in insertion order.
func (s *TaskStore) Snapshot() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id])
	}
	return out
}

// Len returns the number of tasks in the collection.
func (s *TaskStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
