package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Article is one crawled news item. Loaded articles are treated as
// read-only; callers that annotate them work on copies.
type Article struct {
	ID           uint            `gorm:"primaryKey" json:"-"`
	URL          string          `gorm:"size:512;uniqueIndex" json:"url"`
	URLImg       string          `gorm:"size:512" json:"url_img"`
	Title        string          `gorm:"size:512" json:"title"`
	Description  string          `gorm:"type:text" json:"description"`
	Content      string          `gorm:"type:mediumtext" json:"content"`
	ContentClean string          `gorm:"type:mediumtext" json:"content_clean"`
	Metadata     ArticleMetadata `gorm:"embedded;embeddedPrefix:meta_" json:"metadata"`
	CreatedAt    time.Time       `json:"-"`
}

type ArticleMetadata struct {
	Cat           string     `gorm:"size:128;index" json:"cat"`
	Subcat        string     `gorm:"size:128" json:"subcat"`
	PublishedDate string     `gorm:"size:128" json:"published_date"`
	Author        FlexString `gorm:"size:256" json:"author"`
	AvatarURL     string     `gorm:"size:512" json:"avatar_url,omitempty"`
}

// FlexString decodes from a JSON string, an array of strings or null.
// Some crawlers emit the author as a one-element list.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = FlexString(single)
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = FlexString(strings.Join(many, ", "))
	return nil
}
