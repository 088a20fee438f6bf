package domain

// Identity is an authenticated caller. Only the auth middleware builds one,
// after verifying the token and re-loading the account from storage.
type Identity struct {
	studentID string
	role      Role
}

func NewIdentity(studentID string, role Role) Identity {
	return Identity{studentID: studentID, role: role}
}

func (i Identity) StudentID() string { return i.studentID }
func (i Identity) Role() Role         { return i.role }
func (i Identity) IsAdmin() bool      { return i.role == RoleAdmin }
func (i Identity) IsZero() bool       { return i.studentID == "" }

// CanView reports whether the caller may read data owned by studentID.
func (i Identity) CanView(studentID string) bool {
	return i.IsAdmin() || (!i.IsZero() && i.studentID == studentID)
}
