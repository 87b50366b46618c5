// Package models contains domain models for fluxtask.
package models

import "time"

// HabitFrequency represents how often a habit repeats.
type HabitFrequency string

const (
	FrequencyDaily   HabitFrequency = "daily"
	FrequencyWeekly  HabitFrequency = "weekly"
	FrequencyMonthly HabitFrequency = "monthly"
	FrequencyCustom  HabitFrequency = "custom"
)

// AllHabitFrequencies lists the recognized habit frequencies.
var AllHabitFrequencies = []HabitFrequency{
	FrequencyDaily,
	FrequencyWeekly,
	FrequencyMonthly,
	FrequencyCustom,
}

// Task represents a user task as seen by the prioritization engine.
// The presentation and sync layers own the full task record; only the
// fields that feed scoring and learning are carried here.
type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	HasSubtasks bool       `json:"has_subtasks"`
	Completed   bool       `json:"completed"`
}

// Habit represents a recurring habit used for task/habit alignment scoring.
type Habit struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Name      string         `json:"name"`
	Category  string         `json:"category,omitempty"`
	Frequency HabitFrequency `json:"frequency"`
}

// FrequencyWeight returns the alignment weight for a habit frequency.
// More frequent habits indicate stronger routine alignment.
func FrequencyWeight(f HabitFrequency) float64 {
	switch f {
	case FrequencyDaily:
		return 1.0
	case FrequencyWeekly:
		return 0.8
	case FrequencyMonthly:
		return 0.6
	default:
		return 0.5
	}
}
