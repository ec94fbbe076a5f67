package awsx_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/google/uuid"
	"github.com/magicdevops/cloudleakage/internal/awsx"
	"github.com/magicdevops/cloudleakage/internal/database/models"
	"github.com/magicdevops/cloudleakage/internal/testutil"
	"github.com/magicdevops/cloudleakage/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSTS struct {
	lastInput *sts.AssumeRoleInput
	err       error
}

func (f *fakeSTS) AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	f.lastInput = params
	if f.err != nil {
		return nil, f.err
	}
	return &sts.AssumeRoleOutput{
		Credentials: &ststypes.Credentials{
			AccessKeyId:     aws.String("ASIATEMPKEY"),
			SecretAccessKey: aws.String("tempsecret"),
			SessionToken:    aws.String("temptoken"),
			Expiration:      aws.Time(time.Now().Add(time.Hour)),
		},
	}, nil
}

func TestSessionFactory_DeriveKeypair(t *testing.T) {
	db := testutil.SetupTestDB(t)
	enc := testutil.NewTestEncryptor(t)
	account := testutil.CreateKeypairAccount(t, db, enc, "prod")

	factory := awsx.NewSessionFactory(db, enc, util.NewLogger("test"))

	session, err := factory.Derive(testutil.TestContext(t), account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.ID, session.AccountID)
	assert.Equal(t, "us-east-1", session.Region())
	assert.NotNil(t, session.EC2("us-west-2"))
	assert.NotNil(t, session.CloudWatch("us-west-2"))
}

func TestSessionFactory_DeriveUnknownAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	enc := testutil.NewTestEncryptor(t)

	factory := awsx.NewSessionFactory(db, enc, util.NewLogger("test"))

	_, err := factory.Derive(testutil.TestContext(t), uuid.New())
	assert.True(t, awsx.IsSessionError(err, awsx.SessionNotConnected))
}

func TestSessionFactory_DeriveDisconnectedAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	enc := testutil.NewTestEncryptor(t)
	account := testutil.CreateKeypairAccount(t, db, enc, "stale")
	require.NoError(t, db.Model(account).Update("status", models.StatusDisconnected).Error)

	factory := awsx.NewSessionFactory(db, enc, util.NewLogger("test"))

	_, err := factory.Derive(testutil.TestContext(t), account.ID)
	assert.True(t, awsx.IsSessionError(err, awsx.SessionNotConnected))
}

func TestSessionFactory_DeriveCorruptCredentials(t *testing.T) {
	db := testutil.SetupTestDB(t)
	enc := testutil.NewTestEncryptor(t)
	account := testutil.CreateKeypairAccount(t, db, enc, "corrupt")

	// Re-encrypt with a different key so the stored blob no longer decrypts.
	other := testutil.NewTestEncryptor(t)
	ciphertext, err := other.EncryptString(`{"accessKeyId":"a","secretAccessKey":"b"}`)
	require.NoError(t, err)
	require.NoError(t, db.Model(account).Update("encrypted_credentials", ciphertext).Error)

	factory := awsx.NewSessionFactory(db, enc, util.NewLogger("test"))

	_, err = factory.Derive(testutil.TestContext(t), account.ID)
	assert.True(t, awsx.IsSessionError(err, awsx.SessionCredentialCorrupt))
}

func TestSessionFactory_DeriveMalformedCredentials(t *testing.T) {
	db := testutil.SetupTestDB(t)
	enc := testutil.NewTestEncryptor(t)
	account := testutil.CreateKeypairAccount(t, db, enc, "malformed")

	ciphertext, err := enc.EncryptString(`{"foo":"bar"}`)
	require.NoError(t, err)
	require.NoError(t, db.Model(account).Update("encrypted_credentials", ciphertext).Error)

	factory := awsx.NewSessionFactory(db, enc, util.NewLogger("test"))

	_, err = factory.Derive(testutil.TestContext(t), account.ID)
	assert.True(t, awsx.IsSessionError(err, awsx.SessionMalformedCredential))
}

func TestSessionFactory_DeriveEmptyCredentials(t *testing.T) {
	db := testutil.SetupTestDB(t)
	enc := testutil.NewTestEncryptor(t)
	account := testutil.CreateKeypairAccount(t, db, enc, "empty")
	require.NoError(t, db.Model(account).Update("encrypted_credentials", "").Error)

	factory := awsx.NewSessionFactory(db, enc, util.NewLogger("test"))

	_, err := factory.Derive(testutil.TestContext(t), account.ID)
	assert.True(t, awsx.IsSessionError(err, awsx.SessionMalformedCredential))
}

func TestSessionFactory_DeriveAssumedRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	enc := testutil.NewTestEncryptor(t)
	account := testutil.CreateRoleAccount(t, db, "cross-account", "arn:aws:iam::123456789012:role/CostReader")

	stsClient := &fakeSTS{}
	factory := awsx.NewSessionFactory(db, enc, util.NewLogger("test"))
	factory.SetSTSClientFunc(func(cfg aws.Config) awsx.STSAssumeRoleAPI { return stsClient })

	session, err := factory.Derive(testutil.TestContext(t), account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.ID, session.AccountID)

	require.NotNil(t, stsClient.lastInput)
	assert.Equal(t, "arn:aws:iam::123456789012:role/CostReader", aws.ToString(stsClient.lastInput.RoleArn))
	assert.NotEmpty(t, aws.ToString(stsClient.lastInput.RoleSessionName))
}

func TestSessionFactory_DeriveAssumedRoleFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	enc := testutil.NewTestEncryptor(t)
	account := testutil.CreateRoleAccount(t, db, "denied", "arn:aws:iam::123456789012:role/Nope")

	stsClient := &fakeSTS{err: errors.New("AccessDenied: not authorized to assume role")}
	factory := awsx.NewSessionFactory(db, enc, util.NewLogger("test"))
	factory.SetSTSClientFunc(func(cfg aws.Config) awsx.STSAssumeRoleAPI { return stsClient })

	_, err := factory.Derive(testutil.TestContext(t), account.ID)
	assert.True(t, awsx.IsSessionError(err, awsx.SessionAssumeRoleFailed))
}
