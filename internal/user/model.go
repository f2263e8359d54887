package user

import "time"

type NewUser struct {
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type Summary struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstname"`
	LastName  string    `json:"lastname"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Profile is the detail view: public fields plus the user's most recent
// posts and open todos.
type Profile struct {
	Summary
	Posts []ProfilePost `json:"posts"`
	Todos []ProfileTodo `json:"todos"`
}

type ProfilePost struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type ProfileTodo struct {
	ID          string     `json:"id"`
	Task        string     `json:"task"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type ListFilter struct {
	ExcludeID     string
	FirstName     string
	LastName      string
	Email         string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Skip          int
	SortAsc       bool
}
