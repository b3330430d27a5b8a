package models

import (
	"time"

	"gorm.io/gorm"
)

type Course struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	Name  string `json:"name" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	Term  string `json:"term" gorm:"size:50"`
	Owner string `json:"owner" gorm:"not null;index;size:255"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Weeks         []Week         `json:"weeks" gorm:"foreignKey:CourseID"`
	Registrations []Registration `json:"-" gorm:"foreignKey:CourseID"`
}

// Week is the access-window unit of a course offering: exercises become visible
// at StartDate, stop accepting submissions at EndDate, and accommodated
// students get until EndDateExtraTime. Solutions unlock for everyone once
// EndDateExtraTime has passed.
type Week struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	CourseID uint   `json:"course_id" gorm:"not null;index"`
	Number   int    `json:"number" gorm:"not null"`
	Title    string `json:"title" gorm:"size:200"`

	StartDate        time.Time `json:"start_date" gorm:"not null" validate:"required"`
	EndDate          time.Time `json:"end_date" gorm:"not null" validate:"required"`
	EndDateExtraTime time.Time `json:"end_date_extra_time" gorm:"not null" validate:"required"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Course    Course     `json:"-" gorm:"foreignKey:CourseID"`
	Exercises []Exercise `json:"exercises" gorm:"foreignKey:WeekID"`
}

// Registration links a student to a course with a role and an optional stable
// study-group assignment. GroupName/GroupPosition/GroupSize drive the
// capacity-balanced quiz-batch selection; a registration without all three is
// treated as unassigned and falls back to per-student seeding.
type Registration struct {
	ID       uint     `json:"id" gorm:"primaryKey"`
	UserID   string   `json:"user_id" gorm:"not null;index:idx_registration_user_course,unique;size:255"`
	CourseID uint     `json:"course_id" gorm:"not null;index:idx_registration_user_course,unique"`
	Role     UserRole `json:"role" gorm:"not null;default:student;size:20" validate:"omitempty,oneof=student ta admin"`

	GroupName     *string `json:"group_name" gorm:"size:100;index"`
	GroupPosition *int    `json:"group_position"`
	GroupSize     *int    `json:"group_size"`

	HasAccommodation bool `json:"has_accommodation" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	User   User   `json:"user" gorm:"foreignKey:UserID"`
	Course Course `json:"-" gorm:"foreignKey:CourseID"`
}

// HasValidGroup reports whether the registration carries a usable group
// assignment for batch balancing.
func (r *Registration) HasValidGroup() bool {
	if r == nil || r.GroupName == nil || r.GroupPosition == nil || r.GroupSize == nil {
		return false
	}
	return *r.GroupSize > 0 && *r.GroupPosition >= 0 && *r.GroupPosition < *r.GroupSize
}

func (Course) TableName() string {
	return "courses"
}

func (Week) TableName() string {
	return "weeks"
}

func (Registration) TableName() string {
	return "registrations"
}
