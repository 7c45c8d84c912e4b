package models

import "time"

type Vehicle struct {
	ID        string
	Name      string
	Active    bool
	UpdatedAt time.Time
}

type Driver struct {
	ID        string
	Name      string
	Active    bool
	UpdatedAt time.Time
}
