// Package models defines the client-side data types shared by the session
// core: the authenticated user's profile, the persisted credential record,
// and saved biometric credentials.
package models

import "time"

// User is the identity and display profile attached to an authenticated
// session.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company,omitempty"`
}

// CredentialRecord is the live credential set for the current session.
// AccessToken and Expiry are always set together; a record whose Expiry has
// passed is invalid for outbound requests but still usable as input to a
// refresh attempt.
type CredentialRecord struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	User         User
}

// BiometricCredentials are login credentials saved behind the strong-auth
// gate so the user can re-login via biometrics. Their lifecycle is
// independent of the credential record: they survive logout.
type BiometricCredentials struct {
	Email    string    `json:"email"`
	Password string    `json:"password"`
	SavedAt  time.Time `json:"saved_at"`
}
