package fakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/smithy-go"
)

// AWSAccessDenied returns the error AWS sends when IAM denies a call.
func AWSAccessDenied(op string) error {
	return &smithy.GenericAPIError{
		Code:    "AccessDeniedException",
		Message: fmt.Sprintf("User is not authorized to perform: %s", op),
	}
}

// AWSExpiredToken returns the error AWS sends for expired session
// credentials.
func AWSExpiredToken() error {
	return &smithy.GenericAPIError{
		Code:    "ExpiredTokenException",
		Message: "The security token included in the request is expired",
	}
}

// FakeSecretsManagerClient is an in-memory Secrets Manager.
type FakeSecretsManagerClient struct {
	mu sync.Mutex

	// Secrets maps secret names to their current string value.
	Secrets map[string]string
	// Descriptions and Tags record what CreateSecret was given.
	Descriptions map[string]string
	Tags         map[string][]types.Tag

	// GetErr and PutErr, when set, are returned by every read or write.
	GetErr error
	PutErr error

	Calls []string
}

// NewFakeSecretsManagerClient creates a new mock Secrets Manager client
func NewFakeSecretsManagerClient() *FakeSecretsManagerClient {
	return &FakeSecretsManagerClient{
		Secrets:      make(map[string]string),
		Descriptions: make(map[string]string),
		Tags:         make(map[string][]types.Tag),
	}
}

func (f *FakeSecretsManagerClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(params.SecretId)
	f.Calls = append(f.Calls, "GetSecretValue "+name)

	if f.GetErr != nil {
		return nil, f.GetErr
	}
	value, ok := f.Secrets[name]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Secrets Manager can't find the specified secret.")}
	}
	return &secretsmanager.GetSecretValueOutput{
		Name:         aws.String(name),
		SecretString: aws.String(value),
	}, nil
}

func (f *FakeSecretsManagerClient) PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(params.SecretId)
	f.Calls = append(f.Calls, "PutSecretValue "+name)

	if f.PutErr != nil {
		return nil, f.PutErr
	}
	if _, ok := f.Secrets[name]; !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Secrets Manager can't find the specified secret.")}
	}
	f.Secrets[name] = aws.ToString(params.SecretString)
	return &secretsmanager.PutSecretValueOutput{Name: aws.String(name)}, nil
}

func (f *FakeSecretsManagerClient) CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(params.Name)
	f.Calls = append(f.Calls, "CreateSecret "+name)

	if f.PutErr != nil {
		return nil, f.PutErr
	}
	if _, ok := f.Secrets[name]; ok {
		return nil, &types.ResourceExistsException{Message: aws.String("the secret already exists")}
	}
	f.Secrets[name] = aws.ToString(params.SecretString)
	f.Descriptions[name] = aws.ToString(params.Description)
	f.Tags[name] = params.Tags
	return &secretsmanager.CreateSecretOutput{Name: aws.String(name)}, nil
}

// FakeSSMParameter is one stored parameter.
type FakeSSMParameter struct {
	Value       string
	Type        ssmtypes.ParameterType
	Description string
	Version     int64
}

// FakeSSMClient is an in-memory Parameter Store.
type FakeSSMClient struct {
	mu sync.Mutex

	Parameters map[string]*FakeSSMParameter

	GetErr error
	PutErr error

	// Decrypted records the WithDecryption flag of each GetParameter call.
	Decrypted []bool
}

// NewFakeSSMClient creates an empty Parameter Store.
func NewFakeSSMClient() *FakeSSMClient {
	return &FakeSSMClient{Parameters: make(map[string]*FakeSSMParameter)}
}

func (f *FakeSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Decrypted = append(f.Decrypted, aws.ToBool(params.WithDecryption))

	if f.GetErr != nil {
		return nil, f.GetErr
	}
	name := aws.ToString(params.Name)
	p, ok := f.Parameters[name]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{}
	}
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{
			Name:    aws.String(name),
			Value:   aws.String(p.Value),
			Type:    p.Type,
			Version: p.Version,
		},
	}, nil
}

func (f *FakeSSMClient) PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PutErr != nil {
		return nil, f.PutErr
	}
	name := aws.ToString(params.Name)
	existing, ok := f.Parameters[name]
	if ok && !aws.ToBool(params.Overwrite) {
		return nil, &ssmtypes.ParameterAlreadyExists{}
	}
	version := int64(1)
	if ok {
		version = existing.Version + 1
	}
	f.Parameters[name] = &FakeSSMParameter{
		Value:       aws.ToString(params.Value),
		Type:        params.Type,
		Description: aws.ToString(params.Description),
		Version:     version,
	}
	return &ssm.PutParameterOutput{Version: version}, nil
}
