package database

import "time"

type User struct {
	Id          string
	Username    string
	ContactInfo string
	CreatedAt   time.Time
}

type CreateUserParams struct {
	Username    string
	ContactInfo string
}

// SearchUsersParams matches users whose name contains Query, ignoring case,
// or whose contact info contains it. ExcludeId is left out of the results.
type SearchUsersParams struct {
	Query     string
	ExcludeId string
	Limit     int
}
