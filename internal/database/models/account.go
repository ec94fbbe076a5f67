package models

import "time"

type CloudProvider string

const (
	ProviderAWS CloudProvider = "aws"
)

// AccessType selects how credentials for an account are obtained.
type AccessType string

const (
	// AccessTypeKeypair uses a stored, encrypted static access key pair.
	AccessTypeKeypair AccessType = "accesskey"
	// AccessTypeRole assumes an IAM role on every operation.
	AccessTypeRole AccessType = "iam"
)

type AccountStatus string

const (
	StatusConnected    AccountStatus = "connected"
	StatusError        AccountStatus = "error"
	StatusDisconnected AccountStatus = "disconnected"
)

// Account is a registered cloud account integration. Exactly one of
// EncryptedCredentials and RoleARN is set, depending on AccessType.
type Account struct {
	Base
	DisplayName string        `gorm:"not null" json:"display_name"`
	Provider    CloudProvider `gorm:"not null" json:"provider"`
	AccessType  AccessType    `gorm:"not null" json:"access_type"`

	// Base64-encoded age ciphertext of the static credential JSON.
	// Empty for role-based accounts.
	EncryptedCredentials string `gorm:"type:text" json:"-"`

	// IAM role to assume. Empty for keypair accounts.
	RoleARN string `json:"role_arn,omitempty"`

	Status AccountStatus `gorm:"default:connected;index" json:"status"`

	// Capabilities discovered at validation time (caller identity, billing
	// access flag), stored as JSON.
	AccountInfo string `gorm:"type:jsonb;default:'{}'" json:"account_info,omitempty"`

	LastSync *time.Time `json:"last_sync,omitempty"`
}

func (Account) TableName() string {
	return "accounts"
}
