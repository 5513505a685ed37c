package models

import "time"

// DailyStats aggregiert operative Zähler für einen einzelnen Tag
type DailyStats struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	StatDate        time.Time `gorm:"type:date;uniqueIndex" json:"stat_date"`
	AuthorizedCount int64     `gorm:"not null;default:0" json:"authorized_count"`
	DeniedCount     int64     `gorm:"not null;default:0" json:"denied_count"`
	CreditsCharged  int64     `gorm:"not null;default:0" json:"credits_charged"`
	AlertCount      int64     `gorm:"not null;default:0" json:"alert_count"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
