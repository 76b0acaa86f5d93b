// Package domain defines the persistence models for birth profiles, their
// cached astrological facts, chat sessions, conversation turns and feedback.
// These types are mapped with GORM and form the core data layer of the
// astrology chat relay.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Conversation roles accepted on a Turn.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Profile is a cached birth profile keyed by its fingerprint. The facts
// themselves live in ProfileFact rows; LastUpdated drives the refresh tiers.
//
// Fields:
//   - Key: hex SHA-256 fingerprint of the birth data (char(64)).
//   - Name, DOB, TOB, Lat, Lon: the birth data the key was derived from.
//   - LastUpdated: time of the last successful full or tiered refresh.
//   - Facts: one row per fact category, cascade-deleted with the profile.
type Profile struct {
	Key         string    `json:"key"          gorm:"type:char(64);primaryKey"`
	Name        string    `json:"name"         gorm:"type:varchar(255);not null"`
	DOB         string    `json:"dob"          gorm:"type:varchar(10);not null"`
	TOB         string    `json:"tob"          gorm:"type:varchar(5);not null"`
	Lat         float64   `json:"lat"          gorm:"not null"`
	Lon         float64   `json:"lon"          gorm:"not null"`
	LastUpdated time.Time `json:"last_updated" gorm:"not null;index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Facts []ProfileFact `json:"-" gorm:"foreignKey:ProfileKey;references:Key;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }

// ProfileFact stores the raw upstream payload of one fact category for a
// profile. (ProfileKey, Category) is the primary key, so a refresh is an
// upsert of the same row.
type ProfileFact struct {
	ProfileKey string         `json:"profile_key" gorm:"type:char(64);primaryKey"`
	Category   string         `json:"category"    gorm:"type:varchar(64);primaryKey"`
	Payload    datatypes.JSON `json:"payload"     gorm:"not null"`
	FetchedAt  time.Time      `json:"fetched_at"  gorm:"not null"`
}

// TableName returns the database table name for ProfileFact.
func (ProfileFact) TableName() string { return "profile_facts" }

// ChatSession is one conversation. Snapshot holds the fact bundle the
// conversation was seeded with; it is not kept in sync with the profile.
//
// Fields:
//   - ID: opaque session token (UUID, char(36)).
//   - ProfileKey: fingerprint of the birth profile used for the seed.
//   - Snapshot: JSON object of category -> payload at creation time.
//   - ExpiresAt: CreatedAt + session TTL; expired sessions are never served.
//   - LastUpdated: bumped on every appended turn.
type ChatSession struct {
	ID          string         `json:"id"           gorm:"type:char(36);primaryKey"`
	ProfileKey  string         `json:"profile_key"  gorm:"type:char(64);not null;index"`
	Snapshot    datatypes.JSON `json:"-"            gorm:"not null"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"   gorm:"not null;index"`
	LastUpdated time.Time      `json:"last_updated" gorm:"not null"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// Turn is a single message of a transcript. Seq is 1-based and gap-free per
// session; the unique (session_id, seq) index rejects interleaved appends.
type Turn struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	SessionID string    `json:"session_id" gorm:"type:char(36);not null;uniqueIndex:ux_session_seq,priority:1"`
	Seq       int       `json:"seq"        gorm:"not null;uniqueIndex:ux_session_seq,priority:2"`
	Role      string    `json:"role"       gorm:"type:varchar(16);not null;check:role IN ('system','user','assistant')"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`

	// Session is the owning conversation. Turns are cascade-deleted
	// if their session is removed.
	Session ChatSession `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Turn.
func (Turn) TableName() string { return "turns" }

// Feedback is a rating left on an assistant turn. One per turn.
type Feedback struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	TurnID    string    `json:"turn_id"    gorm:"type:char(36);not null;uniqueIndex:ux_feedback_turn"`
	SessionID string    `json:"session_id" gorm:"type:char(36);not null;index"`
	Value     int       `json:"value"      gorm:"not null;check:value IN (-1,1)"`
	Comment   string    `json:"comment"    gorm:"type:varchar(1000)"`
	CreatedAt time.Time `json:"created_at"`

	Turn Turn `json:"-" gorm:"foreignKey:TurnID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Feedback.
func (Feedback) TableName() string { return "feedback" }

// LocationSearch keeps the result list of one geo search so a later
// select-location call can refer to it by token instead of process state.
type LocationSearch struct {
	ID        string         `json:"search_token" gorm:"type:char(36);primaryKey"`
	City      string         `json:"city"         gorm:"type:varchar(255);not null"`
	Results   datatypes.JSON `json:"results"      gorm:"not null"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"   gorm:"not null;index"`
}

// TableName returns the database table name for LocationSearch.
func (LocationSearch) TableName() string { return "location_searches" }
