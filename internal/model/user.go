// Package model defines the data structures shared across the service.
package model

import "time"

// Account is a row of the host user table that this plugin may read or
// mutate. Only accounts whose Auth equals the plugin's auth method are in
// scope for reconciliation.
//
// Timestamps use the zero time for "never" (stored as 0 in the database).
// Duplicate resolution depends on that distinction, see reconcile.Winner.
type Account struct {
	ID           int64     `json:"id"`
	Auth         string    `json:"auth"`
	Username     string    `json:"username"`
	IDNumber     string    `json:"idnumber"` // remote document number
	FirstName    string    `json:"firstname"`
	LastName     string    `json:"lastname"`
	Email        string    `json:"email"`
	Confirmed    bool      `json:"confirmed"`
	Suspended    bool      `json:"suspended"`
	Deleted      bool      `json:"deleted"`
	TimeCreated  time.Time `json:"timecreated"`
	TimeModified time.Time `json:"timemodified"`
	LastAccess   time.Time `json:"lastaccess"`
	LastLogin    time.Time `json:"lastlogin"`
}

// ProfileField is a custom profile field definition declared in the host.
// Param1 holds datatype specific configuration; for menu fields it is the
// newline separated list of options.
type ProfileField struct {
	ID        int64  `json:"id"`
	Shortname string `json:"shortname"`
	Name      string `json:"name"`
	Datatype  string `json:"datatype"`
	Param1    string `json:"param1"`
}

// LinkedLogin ties a remote directory username to a local account.
type LinkedLogin struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}
