package user

type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	RoleCode     RoleCode
}

// Actor is the authenticated caller of a usecase.
type Actor struct {
	UserID   int64
	RoleCode RoleCode
}
