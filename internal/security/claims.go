package security

import "time"

// Roles issued by the society-management auth service.
const (
	RoleAdmin       = "admin"
	RoleSocietyHead = "society_head"
	RoleMember      = "member"
)

type TokenClaims struct {
	UserID  string
	Role    string
	Exp     time.Time
	Issuer  string
	Subject string
}
