package post

import "time"

type Author struct {
	ID        string `json:"id"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
}

type Post struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Comments  []Comment `json:"comments"`
}

type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	Content   string    `json:"content"`
	AddedBy   string    `json:"addedBy"`
	CreatedAt time.Time `json:"createdAt"`
}

type PostInput struct {
	Content string `json:"content"`
}

type CommentInput struct {
	Content string `json:"content"`
}

type ListFilter struct {
	AuthorID      string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Skip          int
	SortAsc       bool
}

type Page struct {
	Posts      []Post `json:"posts"`
	Skip       int    `json:"skip"`
	TotalCount int    `json:"totalCount"`
}
