// Package models defines the persistent entities: jobs, their encoder
// configs, telemetry samples, and archived job snapshots.
package models

import (
	"crypto/rand"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// ULID is the primary key type for all entities. Stored as its 26-char
// text form so rows sort by creation time.
type ULID ulid.ULID

// entropy is monotonic within a millisecond, so IDs minted in the same
// tick still sort in mint order.
var entropy = ulid.LockedMonotonicReader{
	MonotonicReader: ulid.Monotonic(rand.Reader, 0),
}

// NewULID mints a new ID.
func NewULID() ULID {
	return ULID(ulid.MustNew(ulid.Now(), &entropy))
}

// ParseULID parses the canonical 26-character form.
func ParseULID(s string) (ULID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ULID{}, fmt.Errorf("invalid ULID: %w", err)
	}
	return ULID(id), nil
}

// MustParseULID is ParseULID that panics. For tests and constants.
func MustParseULID(s string) ULID {
	id, err := ParseULID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (u ULID) String() string {
	return ulid.ULID(u).String()
}

// IsZero reports whether u is the zero ID.
func (u ULID) IsZero() bool {
	return u == ULID{}
}

// Value implements driver.Valuer. A zero ID stores as NULL.
func (u ULID) Value() (driver.Value, error) {
	if u.IsZero() {
		return nil, nil
	}
	return u.String(), nil
}

// Scan implements sql.Scanner for TEXT and BLOB columns.
func (u *ULID) Scan(value any) error {
	var s string
	switch v := value.(type) {
	case nil:
		*u = ULID{}
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into ULID", value)
	}

	if s == "" {
		*u = ULID{}
		return nil
	}
	id, err := ulid.Parse(s)
	if err != nil {
		return fmt.Errorf("scanning ULID: %w", err)
	}
	*u = ULID(id)
	return nil
}

// MarshalJSON renders the canonical form, or null for the zero ID.
func (u ULID) MarshalJSON() ([]byte, error) {
	if u.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + u.String() + `"`), nil
}

// UnmarshalJSON accepts the canonical form, "", or null.
func (u *ULID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" || string(data) == `""` {
		*u = ULID{}
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid ULID JSON: %s", data)
	}
	id, err := ulid.Parse(string(data[1 : len(data)-1]))
	if err != nil {
		return fmt.Errorf("parsing ULID JSON: %w", err)
	}
	*u = ULID(id)
	return nil
}

// GormDataType tells GORM how to type ULID columns.
func (ULID) GormDataType() string {
	return "varchar(26)"
}

// BaseModel is embedded by every entity: ULID primary key plus the
// usual GORM timestamps.
type BaseModel struct {
	ID        ULID      `gorm:"primarykey;type:varchar(26)" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate mints an ID when the caller did not set one.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID.IsZero() {
		b.ID = NewULID()
	}
	return nil
}

// GetID returns the primary key.
func (b *BaseModel) GetID() ULID {
	return b.ID
}

// Time is the timestamp type used across models.
type Time = time.Time

// Now returns the current time as a model timestamp.
func Now() Time {
	return time.Now()
}
