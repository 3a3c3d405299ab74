package archive

// User is the signed-in account driving the console.
type User struct {
	ID       string
	FullName string
	Role     string
}

// Session is handed to the controller at construction; it never reads ambient state.
type Session struct {
	User User
}

// IsAdmin reports whether the user may run exports and destructive actions.
func (s *Session) IsAdmin() bool {
	if s == nil {
		return false
	}
	return s.User.Role == "ADMIN" || s.User.Role == "SUPERADMIN"
}
