package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/magicdevops/cloudleakage/internal/awsx"
)

// STSIdentityAPI is the identity-check surface of the STS client.
type STSIdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// CostExplorerAPI is the billing-probe surface of the Cost Explorer client.
type CostExplorerAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

// Validator performs live credential checks before an account is persisted.
type Validator struct {
	logger *slog.Logger

	// Client constructors, overridable in tests.
	newSTS func(cfg aws.Config) STSIdentityAPI
	newCE  func(cfg aws.Config) CostExplorerAPI
}

func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{
		logger: logger,
		newSTS: func(cfg aws.Config) STSIdentityAPI {
			return sts.NewFromConfig(cfg)
		},
		newCE: func(cfg aws.Config) CostExplorerAPI {
			return costexplorer.NewFromConfig(cfg)
		},
	}
}

// SetClientFuncs replaces the client constructors. Test hook.
func (v *Validator) SetClientFuncs(newSTS func(cfg aws.Config) STSIdentityAPI, newCE func(cfg aws.Config) CostExplorerAPI) {
	if newSTS != nil {
		v.newSTS = newSTS
	}
	if newCE != nil {
		v.newCE = newCE
	}
}

// KeypairValidation is the outcome of a static-keypair check.
type KeypairValidation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`

	AccountID string `json:"account_id,omitempty"`
	ARN       string `json:"arn,omitempty"`
	UserID    string `json:"user_id,omitempty"`

	// Whether the billing API is reachable with these credentials. Absence
	// of this capability never invalidates the keypair.
	CostAccess bool `json:"cost_access"`
}

// Identity-check failure codes mapped to user-facing reasons.
var identityFailureReasons = map[string]string{
	"InvalidClientTokenId":   "invalid access key id",
	"InvalidUserID.NotFound": "invalid access key id",
	"SignatureDoesNotMatch":  "invalid secret access key",
	"TokenRefreshRequired":   "credentials expired",
	"ExpiredToken":           "credentials expired",
}

// ValidateKeypair verifies a static key pair with one identity check, then
// probes billing access best-effort. Only the probe's own permission denial
// is swallowed into CostAccess=false; any other probe error fails the
// validation outright.
func (v *Validator) ValidateKeypair(ctx context.Context, accessKeyID, secretAccessKey, region string) (KeypairValidation, error) {
	if region == "" {
		region = awsx.DefaultRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	)
	if err != nil {
		return KeypairValidation{}, fmt.Errorf("loading provider config: %w", err)
	}

	identity, err := v.newSTS(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		reason, ok := identityFailureReasons[awsx.ErrorCode(err)]
		if !ok {
			reason = fmt.Sprintf("provider error: %v", err)
		}
		v.logger.Warn("keypair validation failed", "reason", reason)
		return KeypairValidation{Valid: false, Reason: reason}, nil
	}

	result := KeypairValidation{
		Valid:     true,
		AccountID: aws.ToString(identity.Account),
		ARN:       aws.ToString(identity.Arn),
		UserID:    aws.ToString(identity.UserId),
	}

	costAccess, err := v.probeCostAccess(ctx, cfg)
	if err != nil {
		return KeypairValidation{}, fmt.Errorf("checking billing access: %w", err)
	}
	result.CostAccess = costAccess

	return result, nil
}

// probeCostAccess issues a minimal cost query. A permission denial means the
// capability is absent, which is a flag rather than a failure.
func (v *Validator) probeCostAccess(ctx context.Context, cfg aws.Config) (bool, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)

	_, err := v.newCE(cfg).GetCostAndUsage(ctx, &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(start.Format("2006-01-02")),
			End:   aws.String(end.Format("2006-01-02")),
		},
		Granularity: cetypes.GranularityMonthly,
		Metrics:     []string{"UnblendedCost"},
	})
	if err != nil {
		if awsx.Classify(err) == awsx.ErrorAuth {
			v.logger.Debug("billing access not granted", "code", awsx.ErrorCode(err))
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// RoleValidation is the outcome of a structural role-identifier check. It
// deliberately does not attempt to assume the role, so a syntactically valid
// but inaccessible role passes.
type RoleValidation struct {
	Valid     bool   `json:"valid"`
	Reason    string `json:"reason,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	RoleName  string `json:"role_name,omitempty"`
}

// ValidateRoleARN checks the identifier's shape: the IAM role ARN prefix, at
// least six colon-separated segments, an embedded account id and a role name.
func ValidateRoleARN(roleARN string) RoleValidation {
	invalid := RoleValidation{Valid: false, Reason: "bad format"}

	if !strings.HasPrefix(roleARN, "arn:aws:iam::") {
		return invalid
	}
	parts := strings.Split(roleARN, ":")
	if len(parts) < 6 {
		return invalid
	}

	accountID := parts[4]
	if accountID == "" {
		return invalid
	}

	resource := parts[5]
	slash := strings.Index(resource, "/")
	if !strings.HasPrefix(resource, "role/") || slash == len(resource)-1 {
		return invalid
	}

	return RoleValidation{
		Valid:     true,
		AccountID: accountID,
		RoleName:  resource[slash+1:],
	}
}

// MarshalAccountInfo serializes validation-time capabilities for storage on
// the account record.
func MarshalAccountInfo(accountID, arn string, costAccess bool, region string) string {
	info := map[string]interface{}{
		"accountId":  accountID,
		"costAccess": costAccess,
	}
	if arn != "" {
		info["arn"] = arn
	}
	if region != "" {
		info["region"] = region
	}

	data, err := json.Marshal(info)
	if err != nil {
		return "{}"
	}
	return string(data)
}
