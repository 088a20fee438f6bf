package domain

import "time"

// PendingStudent is a self-submitted enrollment waiting for admin approval.
// A record is reserved when the link is generated and filled on submission.
type PendingStudent struct {
	Token                string     `json:"token"`
	Name                 string     `json:"name"`
	Address              string     `json:"address"`
	Email                string     `json:"email"`
	PasswordHash         string     `json:"-"`
	Course               string     `json:"course"`
	Phone                string     `json:"phone"`
	FatherOrGuardianName string     `json:"fatherOrGuardianName"`
	DOB                  *time.Time `json:"dob"`
	Submitted            bool       `json:"submitted"`
	CreatedAt            time.Time  `json:"createdAt"`
	ExpiresAt            time.Time  `json:"expiresAt"`
}

func (p PendingStudent) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

type Course struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
