package domain

import (
	"regexp"
	"strings"
	"time"
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// Address is copied onto orders at creation time as a snapshot, so later
// edits to the user's address never affect placed orders.
type Address struct {
	Street     string
	Number     string
	Complement string
	City       string
	State      string
	PostalCode string
}

type User struct {
	ID        string
	Name      string
	Email     string
	Password  string
	Address   Address
	Phone     string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the user fields, returning a ValidationError listing
// every violated rule.
func (u User) Validate() error {
	var msgs []string
	if strings.TrimSpace(u.Name) == "" {
		msgs = append(msgs, "user name is required")
	}
	if u.Email == "" {
		msgs = append(msgs, "email is required")
	} else if !emailPattern.MatchString(u.Email) {
		msgs = append(msgs, "email is not valid")
	}
	if len(u.Password) < 6 {
		msgs = append(msgs, "password must have at least 6 characters")
	}
	if len(msgs) > 0 {
		return &ValidationError{Messages: msgs}
	}
	return nil
}
