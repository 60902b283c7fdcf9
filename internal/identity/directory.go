package identity

import (
	"context"
	"database/sql"
)

// Student roles recognised by the attendance service.
const (
	RoleStudent    = "STUDENT"
	RoleHosteller  = "HOSTELLER"
	RoleDayScholar = "DAY_SCHOLAR"
	RoleAdmin      = "ADMIN"
)

// StudentRoles lists every role that marks attendance.
var StudentRoles = []string{RoleStudent, RoleHosteller, RoleDayScholar}

// Student is the read-only view of a user the attendance service needs.
type Student struct {
	ID             string  `json:"student_id"`
	FullName       string  `json:"student_name"`
	RegisterNumber *string `json:"register_number,omitempty"`
	Department     *string `json:"department,omitempty"`
	Role           string  `json:"-"`
	Category       string  `json:"-"`
}

// Directory reads students from the users table owned by the identity service.
type Directory struct {
	db *sql.DB
}

func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// ActiveStudents lists active users with a student role, ordered by name.
func (d *Directory) ActiveStudents(ctx context.Context) ([]Student, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, full_name, register_number, department, role, COALESCE(student_category, '')
		FROM users
		WHERE role IN ($1, $2, $3) AND is_active = TRUE
		ORDER BY full_name
	`, RoleStudent, RoleHosteller, RoleDayScholar)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.FullName, &s.RegisterNumber, &s.Department, &s.Role, &s.Category); err != nil {
			return nil, err
		}
		if s.Category == "" {
			s.Category = CategoryFor(s.Role, "")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountActiveStudents counts active users with a student role.
func (d *Directory) CountActiveStudents(ctx context.Context) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users WHERE role IN ($1, $2, $3) AND is_active = TRUE
	`, RoleStudent, RoleHosteller, RoleDayScholar).Scan(&n)
	return n, err
}

// IsStudentRole reports whether role marks attendance.
func IsStudentRole(role string) bool {
	for _, r := range StudentRoles {
		if r == role {
			return true
		}
	}
	return false
}

// CategoryFor derives the window category. An explicit category wins;
// HOSTELLER and DAY_SCHOLAR roles imply their own category.
func CategoryFor(role, explicit string) string {
	if explicit != "" {
		return explicit
	}
	switch role {
	case RoleHosteller, RoleDayScholar:
		return role
	}
	return ""
}
