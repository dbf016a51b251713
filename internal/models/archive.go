package models

import "gorm.io/gorm"

// ArchivedJob preserves a job removed from the active set together with
// its full config snapshot. Restore produces a new active Job from the
// snapshot; archive is distinct from delete.
type ArchivedJob struct {
	BaseModel

	// Name is the job name at archive time. Not unique: the same name may
	// be archived repeatedly.
	Name string `gorm:"not null;size:255;index" json:"name"`

	// ArchivedAt is when the job left the active set.
	ArchivedAt Time `gorm:"not null;index" json:"archived_at"`

	// Reason is the operator-supplied motivation, if any.
	Reason string `gorm:"size:1024" json:"reason,omitempty"`

	// SerializedConfig is the UnifiedConfig snapshot.
	SerializedConfig string `gorm:"type:text;not null" json:"-"`
}

// TableName returns the table name for ArchivedJob.
func (ArchivedJob) TableName() string {
	return "archives"
}

// Config reconstructs the archived UnifiedConfig.
func (a *ArchivedJob) Config() (*UnifiedConfig, error) {
	return ParseUnifiedConfig(a.SerializedConfig)
}

// BeforeCreate stamps ArchivedAt when unset.
func (a *ArchivedJob) BeforeCreate(tx *gorm.DB) error {
	if err := a.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if a.ArchivedAt.IsZero() {
		a.ArchivedAt = Now()
	}
	return nil
}
