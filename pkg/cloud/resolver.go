package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/cloudevy/downtime-scheduler/pkg/credentials"
	"github.com/cloudevy/downtime-scheduler/pkg/types"
)

// DefaultRegion is used when neither the server nor the account names one
const DefaultRegion = "us-east-1"

// Resolver builds the provider that acts on a server
type Resolver interface {
	Resolve(ctx context.Context, server *types.Server, account *types.CloudAccount) (Provider, error)
}

// Decrypter decrypts stored credentials
type Decrypter interface {
	Decrypt(encrypted string) ([]byte, error)
}

// EC2Factory creates an EC2 client for a region and static credentials
type EC2Factory func(ctx context.Context, region string, creds credentials.AWS) (EC2API, error)

// DefaultResolver resolves providers from stored cloud accounts
type DefaultResolver struct {
	decrypter Decrypter
	newEC2    EC2Factory
}

// NewResolver creates a resolver that decrypts account credentials with d
func NewResolver(d Decrypter) *DefaultResolver {
	return &DefaultResolver{decrypter: d, newEC2: newEC2Client}
}

// WithEC2Factory replaces the EC2 client constructor
func (r *DefaultResolver) WithEC2Factory(f EC2Factory) *DefaultResolver {
	r.newEC2 = f
	return r
}

// Resolve returns an instrumented provider for the server's vendor
func (r *DefaultResolver) Resolve(ctx context.Context, server *types.Server, account *types.CloudAccount) (Provider, error) {
	if server == nil {
		return nil, errors.New("server is required")
	}

	switch server.Provider {
	case types.ProviderAWS:
		if account == nil || account.Credentials == "" {
			return nil, errors.New("cloud account credentials are required")
		}
		if r.decrypter == nil {
			return nil, errors.New("no encryption key configured")
		}
		plaintext, err := r.decrypter.Decrypt(account.Credentials)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
		}
		creds, err := credentials.ParseAWS(plaintext)
		if err != nil {
			return nil, err
		}

		region := firstRegion(server.Region, account.Region, creds.Region)
		client, err := r.newEC2(ctx, region, creds)
		if err != nil {
			return nil, fmt.Errorf("failed to create EC2 client: %w", err)
		}
		return Instrument(string(types.ProviderAWS), NewEC2Provider(client)), nil

	case types.ProviderAzure, types.ProviderGCP:
		return Instrument(string(server.Provider), unsupported{name: string(server.Provider)}), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, server.Provider)
	}
}

func firstRegion(regions ...string) string {
	for _, r := range regions {
		if r != "" {
			return r
		}
	}
	return DefaultRegion
}

func newEC2Client(ctx context.Context, region string, creds credentials.AWS) (EC2API, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.NewCredentialsCache(
			awscreds.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		)),
	)
	if err != nil {
		return nil, err
	}
	return NewEC2ProviderFromConfig(cfg).client, nil
}
