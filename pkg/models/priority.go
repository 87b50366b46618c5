package models

// PriorityFactors is the per-factor breakdown of a priority score.
// Retained for explainability and testing only; scores are recomputed
// on every scoring pass and never persisted.
type PriorityFactors struct {
	DueDate        float64 `json:"due_date"`
	HabitAlignment float64 `json:"habit_alignment"`
	TimeOfDay      float64 `json:"time_of_day"`
	Complexity     float64 `json:"complexity"`
	MLAdjustment   float64 `json:"ml_adjustment"`
}

// TaskPriorityScore is the scored output for a single task.
type TaskPriorityScore struct {
	TaskID  string          `json:"task_id"`
	Score   float64         `json:"score"`
	Factors PriorityFactors `json:"factors"`
}
