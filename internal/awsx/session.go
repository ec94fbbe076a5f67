package awsx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"
	"github.com/magicdevops/cloudleakage/internal/database/models"
	"github.com/magicdevops/cloudleakage/pkg/crypto"
	"gorm.io/gorm"
)

// Role sessions are tagged with this name so their activity is attributable
// in CloudTrail.
const roleSessionName = "cloudleakage-session"

// EC2API is the subset of the EC2 client the collector and fetcher use.
// The concrete *ec2.Client satisfies it; tests substitute fakes.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeSnapshots(ctx context.Context, params *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error)
	DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
}

// CloudWatchAPI is the subset of the CloudWatch client used for utilization
// samples and alarm listing.
type CloudWatchAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
	DescribeAlarms(ctx context.Context, params *cloudwatch.DescribeAlarmsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.DescribeAlarmsOutput, error)
}

// ClientFactory hands out region-scoped API clients for one account session.
type ClientFactory interface {
	EC2(region string) EC2API
	CloudWatch(region string) CloudWatchAPI
}

// Session is an ephemeral, per-operation authorization context derived from a
// stored account. It is single-collection-lived: assumed-role tokens expire
// and static sessions carry no refresh logic, so callers must not retain one
// beyond a single pass.
type Session struct {
	AccountID uuid.UUID
	cfg       aws.Config
}

func (s *Session) EC2(region string) EC2API {
	return ec2.NewFromConfig(s.cfg, func(o *ec2.Options) {
		o.Region = region
	})
}

func (s *Session) CloudWatch(region string) CloudWatchAPI {
	return cloudwatch.NewFromConfig(s.cfg, func(o *cloudwatch.Options) {
		o.Region = region
	})
}

// Region returns the session's default region hint.
func (s *Session) Region() string {
	return s.cfg.Region
}

// STSAssumeRoleAPI is the role-assumption surface of the STS client.
type STSAssumeRoleAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// SessionFactory turns stored account records into usable sessions, decrypting
// static keys or assuming the configured role.
type SessionFactory struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
	logger    *slog.Logger

	// Overridable in tests to avoid live STS calls.
	newSTS func(cfg aws.Config) STSAssumeRoleAPI
}

func NewSessionFactory(db *gorm.DB, encryptor *crypto.Encryptor, logger *slog.Logger) *SessionFactory {
	return &SessionFactory{
		db:        db,
		encryptor: encryptor,
		logger:    logger,
		newSTS: func(cfg aws.Config) STSAssumeRoleAPI {
			return sts.NewFromConfig(cfg)
		},
	}
}

// SetSTSClientFunc replaces the STS client constructor. Test hook.
func (f *SessionFactory) SetSTSClientFunc(fn func(cfg aws.Config) STSAssumeRoleAPI) {
	f.newSTS = fn
}

// Derive builds a session for the account. The account must exist, be in
// connected status and belong to the supported provider; otherwise the result
// is SessionNotConnected regardless of why (a deleted account is
// indistinguishable from a never-registered one here).
func (f *SessionFactory) Derive(ctx context.Context, accountID uuid.UUID) (*Session, error) {
	var account models.Account
	if err := f.db.WithContext(ctx).First(&account, "id = ?", accountID).Error; err != nil {
		return nil, &SessionError{Kind: SessionNotConnected, AccountID: accountID.String(), Err: err}
	}

	if account.Status != models.StatusConnected || account.Provider != models.ProviderAWS {
		return nil, &SessionError{Kind: SessionNotConnected, AccountID: accountID.String()}
	}

	switch account.AccessType {
	case models.AccessTypeKeypair:
		return f.deriveStatic(ctx, &account)
	case models.AccessTypeRole:
		return f.deriveAssumedRole(ctx, &account)
	default:
		return nil, &SessionError{
			Kind:      SessionMalformedCredential,
			AccountID: accountID.String(),
			Err:       fmt.Errorf("unsupported access type %q", account.AccessType),
		}
	}
}

func (f *SessionFactory) deriveStatic(ctx context.Context, account *models.Account) (*Session, error) {
	if account.EncryptedCredentials == "" {
		return nil, &SessionError{
			Kind:      SessionMalformedCredential,
			AccountID: account.ID.String(),
			Err:       fmt.Errorf("no stored credentials"),
		}
	}

	plaintext, err := f.encryptor.DecryptString(account.EncryptedCredentials)
	if err != nil {
		return nil, &SessionError{Kind: SessionCredentialCorrupt, AccountID: account.ID.String(), Err: err}
	}

	creds, err := ParseStaticCredentials([]byte(plaintext))
	if err != nil {
		return nil, &SessionError{Kind: SessionMalformedCredential, AccountID: account.ID.String(), Err: err}
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(creds.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID,
			creds.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, &SessionError{Kind: SessionMalformedCredential, AccountID: account.ID.String(), Err: err}
	}

	return &Session{AccountID: account.ID, cfg: cfg}, nil
}

func (f *SessionFactory) deriveAssumedRole(ctx context.Context, account *models.Account) (*Session, error) {
	region := accountInfoRegion(account.AccountInfo)

	baseCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, &SessionError{Kind: SessionAssumeRoleFailed, AccountID: account.ID.String(), Err: err}
	}

	out, err := f.newSTS(baseCfg).AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(account.RoleARN),
		RoleSessionName: aws.String(roleSessionName),
	})
	if err != nil {
		return nil, &SessionError{Kind: SessionAssumeRoleFailed, AccountID: account.ID.String(), Err: err}
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			aws.ToString(out.Credentials.AccessKeyId),
			aws.ToString(out.Credentials.SecretAccessKey),
			aws.ToString(out.Credentials.SessionToken),
		)),
	)
	if err != nil {
		return nil, &SessionError{Kind: SessionAssumeRoleFailed, AccountID: account.ID.String(), Err: err}
	}

	f.logger.Debug("assumed role", "account_id", account.ID, "role_arn", account.RoleARN)

	return &Session{AccountID: account.ID, cfg: cfg}, nil
}

// accountInfoRegion pulls the region hint out of the account-info blob
// recorded at validation time, defaulting when absent or malformed.
func accountInfoRegion(info string) string {
	if info == "" {
		return DefaultRegion
	}
	var parsed struct {
		Region string `json:"region"`
	}
	if err := json.Unmarshal([]byte(info), &parsed); err != nil || parsed.Region == "" {
		return DefaultRegion
	}
	return parsed.Region
}
