package models

import (
	"time"
)

type User struct {
	ID            string     `json:"id" gorm:"primaryKey;type:text"`
	Username      string     `json:"username" gorm:"type:text;uniqueIndex;not null"`
	Email         string     `json:"email" gorm:"type:text;uniqueIndex;not null"`
	ExternalID    string     `json:"externalId" gorm:"<-:create;type:text;uniqueIndex;not null"`
	UserType      string     `json:"userType" gorm:"type:text;index;not null"`
	FirstName     string     `json:"firstName" gorm:"type:text"`
	LastName      string     `json:"lastName" gorm:"type:text"`
	PhoneNumber   string     `json:"phoneNumber" gorm:"type:text"`
	Status        string     `json:"status" gorm:"type:text;not null;default:'PENDING'"`
	EmailVerified bool       `json:"emailVerified" gorm:"not null;default:false"`
	PhoneVerified bool       `json:"phoneVerified" gorm:"not null;default:false"`
	LastLogin     *time.Time `json:"lastLogin" gorm:"type:timestamp with time zone"`
	Version       int64      `json:"version" gorm:"not null;default:1"`
	CDate         time.Time  `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	MDate         time.Time  `json:"mdate" gorm:"autoUpdateTime"`
}
