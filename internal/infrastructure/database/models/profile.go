package models

import (
	"time"

	"github.com/lib/pq"
)

type Profile struct {
	ID          string             `json:"id" gorm:"primaryKey;type:text"`
	UserID      string             `json:"userId" gorm:"<-:create;type:text;uniqueIndex;not null"`
	User        User               `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE;"`
	ProfileType string             `json:"profileType" gorm:"<-:create;type:text;index;not null"`
	Attributes  []ProfileAttribute `json:"attributes" gorm:"foreignKey:ProfileID;references:ID;constraint:OnDelete:CASCADE;"`
	Permissions pq.StringArray     `json:"permissions" gorm:"type:text[]"`
	Verified    bool               `json:"verified" gorm:"not null;default:false"`
	VerifiedAt  *time.Time         `json:"verifiedAt" gorm:"type:timestamp with time zone"`
	VerifiedBy  string             `json:"verifiedBy" gorm:"type:text"`
	Version     int64              `json:"version" gorm:"not null;default:1"`
	CDate       time.Time          `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	MDate       time.Time          `json:"mdate" gorm:"autoUpdateTime"`
}

type ProfileAttribute struct {
	ProfileID string `json:"profileId" gorm:"primaryKey;type:text"`
	Key       string `json:"key" gorm:"primaryKey;type:text"`
	Value     string `json:"value" gorm:"type:text"`
}
