package model

// Suggestion is a candidate task proposed for a given day.
type Suggestion struct {
	ID          string  `gorm:"primaryKey" json:"id"`
	UserID      string  `gorm:"index:idx_suggestion_user_day" json:"userId"`
	Day         string  `gorm:"index:idx_suggestion_user_day" json:"day"`
	Activity    string  `json:"activity"`
	Description string  `json:"description"`
	StartTime   float64 `json:"startTime"`
	Duration    float64 `json:"duration"`
	Category    string  `json:"category"`
	Confidence  float64 `json:"confidence"`
	Processed   bool    `gorm:"default:false" json:"processed"`
	CreatedAt   int64   `gorm:"autoCreateTime:milli" json:"createdAt"`
}

// TableName keeps the collection name used by the web client.
func (Suggestion) TableName() string {
	return "task_suggestions"
}
