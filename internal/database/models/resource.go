package models

import (
	"time"

	"github.com/google/uuid"
)

// Persisted snapshots of collected inventory, one table per resource kind.
// Each row is keyed by (account_id, provider resource id, region) so sync
// write-throughs are idempotent upserts.

type Instance struct {
	Base
	AccountID        uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_instances_account_instance,priority:1;not null" json:"account_id"`
	InstanceID       string    `gorm:"uniqueIndex:idx_instances_account_instance,priority:2;not null" json:"instance_id"`
	Region           string    `gorm:"uniqueIndex:idx_instances_account_instance,priority:3;not null" json:"region"`
	InstanceType     string    `json:"instance_type"`
	State            string    `json:"state"`
	AvailabilityZone string    `json:"availability_zone"`
	LaunchTime       time.Time `json:"launch_time"`
	Platform         string    `json:"platform"`
	VpcID            string    `json:"vpc_id,omitempty"`
	PrivateIP        string    `json:"private_ip,omitempty"`
	PublicIP         string    `json:"public_ip,omitempty"`
	Tags             string    `gorm:"type:jsonb;default:'{}'" json:"tags,omitempty"`
	RawData          string    `gorm:"type:jsonb;default:'{}'" json:"-"`
	LastUpdated      time.Time `json:"last_updated"`

	Account *Account `gorm:"foreignKey:AccountID" json:"-"`
}

func (Instance) TableName() string {
	return "instances"
}

type Snapshot struct {
	Base
	AccountID  uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_snapshots_account_snapshot,priority:1;not null" json:"account_id"`
	SnapshotID string    `gorm:"uniqueIndex:idx_snapshots_account_snapshot,priority:2;not null" json:"snapshot_id"`
	Region     string    `gorm:"uniqueIndex:idx_snapshots_account_snapshot,priority:3;not null" json:"region"`
	VolumeID   string    `json:"volume_id,omitempty"`
	State      string    `json:"state"`
	StartTime  time.Time `json:"start_time"`
	VolumeSize int32     `json:"volume_size"`
	Encrypted  bool      `json:"encrypted"`
	Tags       string    `gorm:"type:jsonb;default:'{}'" json:"tags,omitempty"`

	Account *Account `gorm:"foreignKey:AccountID" json:"-"`
}

func (Snapshot) TableName() string {
	return "snapshots"
}

type Image struct {
	Base
	AccountID    uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_images_account_image,priority:1;not null" json:"account_id"`
	ImageID      string    `gorm:"uniqueIndex:idx_images_account_image,priority:2;not null" json:"image_id"`
	Region       string    `gorm:"uniqueIndex:idx_images_account_image,priority:3;not null" json:"region"`
	Name         string    `json:"name,omitempty"`
	State        string    `json:"state"`
	OwnerID      string    `json:"owner_id,omitempty"`
	CreationDate time.Time `json:"creation_date"`
	Public       bool      `json:"public"`
	Platform     string    `json:"platform"`
	Tags         string    `gorm:"type:jsonb;default:'{}'" json:"tags,omitempty"`

	Account *Account `gorm:"foreignKey:AccountID" json:"-"`
}

func (Image) TableName() string {
	return "images"
}

type Volume struct {
	Base
	AccountID  uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_volumes_account_volume,priority:1;not null" json:"account_id"`
	VolumeID   string    `gorm:"uniqueIndex:idx_volumes_account_volume,priority:2;not null" json:"volume_id"`
	Region     string    `gorm:"uniqueIndex:idx_volumes_account_volume,priority:3;not null" json:"region"`
	Size       int32     `json:"size"`
	State      string    `json:"state"`
	VolumeType string    `json:"volume_type"`
	Encrypted  bool      `json:"encrypted"`
	CreateTime time.Time `json:"create_time"`
	Tags       string    `gorm:"type:jsonb;default:'{}'" json:"tags,omitempty"`

	Account *Account `gorm:"foreignKey:AccountID" json:"-"`
}

func (Volume) TableName() string {
	return "volumes"
}
