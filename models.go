package main

import (
	"database/sql"
	"time"
)

type Post struct {
	ID        int64
	Title     string
	Summary   string
	Content   string
	LinkURL   string
	CreatedAt time.Time
}

// Session holds the admin flag for one browser. Admin is invalid until
// login or guest mode writes it.
type Session struct {
	Token     string
	Admin     sql.NullBool
	ExpiresAt time.Time
}
