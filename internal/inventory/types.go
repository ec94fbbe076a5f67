package inventory

import (
	"fmt"
	"time"
)

// Kind identifies a collectible resource kind.
type Kind string

const (
	KindInstance Kind = "instance"
	KindSnapshot Kind = "snapshot"
	KindAMI      Kind = "ami"
	KindVolume   Kind = "volume"
)

// ParseKind validates a user-supplied kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindInstance, KindSnapshot, KindAMI, KindVolume:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown resource kind %q", s)
}

// ScopeAll is the region selector meaning "every region the account exposes".
const ScopeAll = "all"

// Resource is the normalized, provider-agnostic record shape shared by all
// kinds. Kind-specific fields are populated per Kind and zero otherwise;
// provider fields with no fixed slot pass through in Extra. State is the
// provider's free-text value and is not re-validated.
//
// VolumeID on a snapshot (and similar cross-kind references) is a weak
// reference. The referenced resource may no longer exist.
type Resource struct {
	Kind   Kind              `json:"kind"`
	ID     string            `json:"id"`
	Region string            `json:"region"`
	State  string            `json:"state"`
	Tags   map[string]string `json:"tags,omitempty"`

	// Instance fields.
	InstanceType     string     `json:"instance_type,omitempty"`
	Platform         string     `json:"platform,omitempty"`
	Architecture     string     `json:"architecture,omitempty"`
	AvailabilityZone string     `json:"availability_zone,omitempty"`
	LaunchTime       *time.Time `json:"launch_time,omitempty"`
	PrivateIP        string     `json:"private_ip,omitempty"`
	PublicIP         string     `json:"public_ip,omitempty"`
	VpcID            string     `json:"vpc_id,omitempty"`
	StateTransition  string     `json:"state_transition,omitempty"`

	// Snapshot and volume fields.
	VolumeID   string     `json:"volume_id,omitempty"`
	VolumeSize int32      `json:"volume_size,omitempty"`
	VolumeType string     `json:"volume_type,omitempty"`
	Encrypted  bool       `json:"encrypted,omitempty"`
	StartTime  *time.Time `json:"start_time,omitempty"`

	// Image fields.
	Name         string     `json:"name,omitempty"`
	OwnerID      string     `json:"owner_id,omitempty"`
	CreationDate *time.Time `json:"creation_date,omitempty"`
	Public       bool       `json:"public,omitempty"`

	Description string            `json:"description,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// DisplayName returns the Name tag when present, falling back to the id.
func (r Resource) DisplayName() string {
	if name, ok := r.Tags["Name"]; ok && name != "" {
		return name
	}
	return r.ID
}
