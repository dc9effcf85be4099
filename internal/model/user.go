package model

import "time"

// User is the slice of the profile service the session core reads.
type User struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}

type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

func (u *User) Summary() UserSummary {
	if u == nil {
		return UserSummary{}
	}
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}
