package roster

import "time"

// Roles. Exactly one user holds RoleOwner: the first registrant using the
// reserved owner email. Owner promotes and demotes between editor and
// student; the owner role itself is never granted or removed here.
const (
	RoleOwner   = "owner"
	RoleEditor  = "editor"
	RoleStudent = "student"
)

// User is an account. Email is unique and stored lowercase.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Student is the academic profile completed by a student user. The link to
// its user is one-to-one and immutable once set; SemesterID records the
// semester in which the profile was completed.
type Student struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Roll       string    `json:"roll"`
	SemesterID string    `json:"semester_id"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}
