package models

import (
	"time"

	"gorm.io/gorm"
)

// ControlGroupPolicy decides which exercise variant a student receives.
type ControlGroupPolicy string

const (
	// ControlGroupAll assigns every student the reading variant.
	ControlGroupAll ControlGroupPolicy = "all"
	// ControlGroupNone assigns every student the chat-driven explain variant.
	ControlGroupNone ControlGroupPolicy = "none"
	// Any other non-empty value is a named split compared against the
	// student's registration group.
)

// ExerciseVariant is the content variant shown to one student.
type ExerciseVariant string

const (
	VariantReading ExerciseVariant = "reading"
	VariantExplain ExerciseVariant = "explain"
)

type Exercise struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	WeekID uint   `json:"week_id" gorm:"not null;index"`
	Title  string `json:"title" gorm:"not null;size:200" validate:"required,min=1,max=200"`

	// Reading-variant content, shown verbatim.
	Content string `json:"content" gorm:"type:text"`

	// Experiment split: "all", "none", or a named group value matched
	// against the student's registration group.
	ControlGroup ControlGroupPolicy `json:"control_group" gorm:"not null;default:all;size:100"`

	// Chat-driven variant metadata.
	SystemPrompt    string `json:"system_prompt" gorm:"type:text"`
	FirstMessage    string `json:"first_message" gorm:"type:text"`
	ExplainDuration int    `json:"explain_duration" gorm:"default:0"` // suggested minutes, informational

	Published bool `json:"published" gorm:"not null;default:false;index"`

	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Week Week  `json:"-" gorm:"foreignKey:WeekID" validate:"-"`
	Quiz *Quiz `json:"quiz,omitempty" gorm:"foreignKey:ExerciseID"`
}

// HasNamedSplit reports whether ControlGroup is a named experiment split
// rather than one of the blanket policies.
func (e *Exercise) HasNamedSplit() bool {
	return e.ControlGroup != ControlGroupAll && e.ControlGroup != ControlGroupNone && e.ControlGroup != ""
}

func (Exercise) TableName() string {
	return "exercises"
}
