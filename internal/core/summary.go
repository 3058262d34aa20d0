package core

// CategoryTotal aggregates the goals of one category.
type CategoryTotal struct {
	Name   string `json:"name"`
	Goals  int    `json:"goals"`
	Saved  Money  `json:"saved"`
	Target Money  `json:"target"`
}
