package model

import "time"

// ClusterRun audits one completed fit.
type ClusterRun struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Generation string    `gorm:"size:36;not null;uniqueIndex" json:"generation"`
	Strategy   string    `gorm:"size:32;not null" json:"strategy"`
	BestK      int       `gorm:"not null" json:"best_k"`
	Scores     string    `gorm:"type:text" json:"scores"`
	Documents  int       `gorm:"not null" json:"documents"`
	Clusters   int       `gorm:"not null" json:"clusters"`
	Noise      int       `gorm:"not null" json:"noise"`
	DurationMS int64     `gorm:"not null" json:"duration_ms"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}
