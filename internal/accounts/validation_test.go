package accounts

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/magicdevops/cloudleakage/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIdentitySTS struct {
	err error
}

func (f *fakeIdentitySTS) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sts.GetCallerIdentityOutput{
		Account: aws.String("123456789012"),
		Arn:     aws.String("arn:aws:iam::123456789012:user/billing-bot"),
		UserId:  aws.String("AIDAEXAMPLE"),
	}, nil
}

type fakeCostExplorer struct {
	err error
}

func (f *fakeCostExplorer) GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &costexplorer.GetCostAndUsageOutput{}, nil
}

func newTestValidator(stsClient STSIdentityAPI, ceClient CostExplorerAPI) *Validator {
	validator := NewValidator(util.NewLogger("test"))
	validator.SetClientFuncs(
		func(cfg aws.Config) STSIdentityAPI { return stsClient },
		func(cfg aws.Config) CostExplorerAPI { return ceClient },
	)
	return validator
}

func TestValidateKeypair_Valid(t *testing.T) {
	validator := newTestValidator(&fakeIdentitySTS{}, &fakeCostExplorer{})

	result, err := validator.ValidateKeypair(context.Background(), "AKIA123", "secret", "")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "123456789012", result.AccountID)
	assert.Equal(t, "arn:aws:iam::123456789012:user/billing-bot", result.ARN)
	assert.True(t, result.CostAccess)
}

func TestValidateKeypair_ReasonCodes(t *testing.T) {
	tests := []struct {
		code   string
		reason string
	}{
		{"InvalidClientTokenId", "invalid access key id"},
		{"InvalidUserID.NotFound", "invalid access key id"},
		{"SignatureDoesNotMatch", "invalid secret access key"},
		{"TokenRefreshRequired", "credentials expired"},
		{"ExpiredToken", "credentials expired"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			validator := newTestValidator(
				&fakeIdentitySTS{err: &smithy.GenericAPIError{Code: tt.code, Message: "no"}},
				&fakeCostExplorer{},
			)

			result, err := validator.ValidateKeypair(context.Background(), "AKIA123", "secret", "us-east-1")
			require.NoError(t, err, "an invalid keypair is a result, not an error")
			assert.False(t, result.Valid)
			assert.Equal(t, tt.reason, result.Reason)
		})
	}
}

func TestValidateKeypair_UnknownIdentityError(t *testing.T) {
	validator := newTestValidator(
		&fakeIdentitySTS{err: &smithy.GenericAPIError{Code: "InternalFailure", Message: "oops"}},
		&fakeCostExplorer{},
	)

	result, err := validator.ValidateKeypair(context.Background(), "AKIA123", "secret", "")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Reason, "provider error")
}

func TestValidateKeypair_CostAccessDeniedIsAFlag(t *testing.T) {
	validator := newTestValidator(
		&fakeIdentitySTS{},
		&fakeCostExplorer{err: &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no ce"}},
	)

	result, err := validator.ValidateKeypair(context.Background(), "AKIA123", "secret", "")
	require.NoError(t, err)
	assert.True(t, result.Valid, "missing billing access never invalidates the keypair")
	assert.False(t, result.CostAccess)
}

func TestValidateKeypair_CostProbeOtherErrorFails(t *testing.T) {
	validator := newTestValidator(
		&fakeIdentitySTS{},
		&fakeCostExplorer{err: &smithy.GenericAPIError{Code: "Throttling", Message: "slow down"}},
	)

	_, err := validator.ValidateKeypair(context.Background(), "AKIA123", "secret", "")
	assert.Error(t, err, "non-permission probe errors propagate as validation failures")
}

func TestValidateRoleARN(t *testing.T) {
	tests := []struct {
		name      string
		arn       string
		valid     bool
		accountID string
		roleName  string
	}{
		{"valid role", "arn:aws:iam::123456789012:role/MyRole", true, "123456789012", "MyRole"},
		{"role with path", "arn:aws:iam::123456789012:role/service/Deploy", true, "123456789012", "service/Deploy"},
		{"not an arn", "not-an-arn", false, "", ""},
		{"empty", "", false, "", ""},
		{"wrong service", "arn:aws:s3:::my-bucket", false, "", ""},
		{"missing account", "arn:aws:iam:::role/MyRole", false, "", ""},
		{"user not role", "arn:aws:iam::123456789012:user/alice", false, "", ""},
		{"role without name", "arn:aws:iam::123456789012:role/", false, "", ""},
		{"too few segments", "arn:aws:iam::123456789012", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateRoleARN(tt.arn)
			assert.Equal(t, tt.valid, result.Valid)
			if tt.valid {
				assert.Equal(t, tt.accountID, result.AccountID)
				assert.Equal(t, tt.roleName, result.RoleName)
			} else {
				assert.Equal(t, "bad format", result.Reason)
			}
		})
	}
}

func TestMarshalAccountInfo(t *testing.T) {
	info := MarshalAccountInfo("123456789012", "arn:aws:iam::123456789012:user/x", true, "eu-west-1")

	assert.Contains(t, info, `"accountId":"123456789012"`)
	assert.Contains(t, info, `"costAccess":true`)
	assert.Contains(t, info, `"region":"eu-west-1"`)
}
