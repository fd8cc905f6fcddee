package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin  UserRole = "SUPERADMIN"
	RoleAdmin       UserRole = "ADMIN"
	RoleCoordinator UserRole = "COORDINATOR"
	RoleTeacher     UserRole = "TEACHER"
	RoleStudent     UserRole = "STUDENT"
)

// Principal is the acting user resolved from a bearer token.
type Principal struct {
	UserID    string   `json:"user_id"`
	Role      UserRole `json:"role"`
	TeacherID string   `json:"teacher_id,omitempty"`
}

// ManagesTimetable reports whether the principal may edit assignments and publish.
func (p Principal) ManagesTimetable() bool {
	switch p.Role {
	case RoleSuperAdmin, RoleAdmin, RoleCoordinator:
		return true
	}
	return false
}

// CanEditAvailability allows managers and the teacher themself.
func (p Principal) CanEditAvailability(teacherID string) bool {
	if p.ManagesTimetable() {
		return true
	}
	return p.Role == RoleTeacher && p.TeacherID != "" && p.TeacherID == teacherID
}

// JWTClaims represents the JWT payload of access tokens issued by the identity service.
type JWTClaims struct {
	UserID    string   `json:"user_id"`
	Role      UserRole `json:"role"`
	TeacherID string   `json:"teacher_id,omitempty"`
	jwt.RegisteredClaims
}

// Principal converts the claims into the engine's acting principal.
func (c *JWTClaims) Principal() Principal {
	return Principal{UserID: c.UserID, Role: c.Role, TeacherID: c.TeacherID}
}
