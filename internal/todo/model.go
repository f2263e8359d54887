package todo

import "time"

type Todo struct {
	ID          string     `json:"id"`
	Task        string     `json:"task"`
	OwnerID     string     `json:"user"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type TodoInput struct {
	Task string `json:"task"`
}

type ListFilter struct {
	OwnerIDs      []string
	Completed     bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Skip          int
	SortAsc       bool
}

type Page struct {
	Tasks      []Todo `json:"tasks"`
	Skip       int    `json:"skip"`
	TotalCount int    `json:"totalCount"`
}
