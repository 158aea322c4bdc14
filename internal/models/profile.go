package models

import "time"

// Role-extension rows. Creating a user bundles the matching detail row in the
// same transaction; deleting a user cascades to it.

// StudentProfile is the students detail row.
type StudentProfile struct {
	UserID     string    `db:"user_id" json:"user_id"`
	StudentNo  string    `db:"student_no" json:"student_no"`
	GradeLevel string    `db:"grade_level" json:"grade_level"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// TeacherProfile is the teachers detail row.
type TeacherProfile struct {
	UserID    string    `db:"user_id" json:"user_id"`
	StaffNo   string    `db:"staff_no" json:"staff_no"`
	Expertise string    `db:"expertise" json:"expertise"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ParentProfile is the parents detail row.
type ParentProfile struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Phone     string    `db:"phone" json:"phone"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
