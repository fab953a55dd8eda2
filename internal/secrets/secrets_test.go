package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvProvider_GetSecret(t *testing.T) {
	t.Setenv("OPENAIKEY_3", "sk-three")
	t.Setenv("OPENAIKEY_4", "")

	p := NewEnvProvider("OPENAIKEY")

	v, err := p.GetSecret(context.Background(), "KEY_3")
	require.NoError(t, err)
	assert.Equal(t, "sk-three", v)

	_, err = p.GetSecret(context.Background(), "KEY_4")
	assert.ErrorIs(t, err, ErrKeyNotConfigured, "empty value counts as unset")

	_, err = p.GetSecret(context.Background(), "KEY_35")
	assert.ErrorIs(t, err, ErrKeyNotConfigured)
}

func TestEnvProvider_EnvName(t *testing.T) {
	assert.Equal(t, "OPENAIKEY_0", NewEnvProvider("OPENAIKEY").EnvName("KEY_0"))
	assert.Equal(t, "GROQ_12", NewEnvProvider("GROQ").EnvName("KEY_12"))
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, Options{KeyPrefix: "X"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "env", p.Name())

	_, err = NewProvider(ctx, Options{Type: ProviderTypeAWS}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewProvider(ctx, Options{Type: "vault"}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

type fakeSecretsManager struct {
	value *string
	err   error
	calls int
}

func (f *fakeSecretsManager) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{Name: in.SecretId, SecretString: f.value}, nil
}

func TestAWSProvider_GetSecret(t *testing.T) {
	fake := &fakeSecretsManager{value: aws.String(`{"KEY_0":"sk-zero","KEY_1":""}`)}
	p := newAWSProvider(fake, "key-switcher/keys", zerolog.Nop())

	v, err := p.GetSecret(context.Background(), "KEY_0")
	require.NoError(t, err)
	assert.Equal(t, "sk-zero", v)

	_, err = p.GetSecret(context.Background(), "KEY_1")
	assert.ErrorIs(t, err, ErrKeyNotConfigured)

	_, err = p.GetSecret(context.Background(), "KEY_2")
	assert.ErrorIs(t, err, ErrKeyNotConfigured)

	assert.Equal(t, 1, fake.calls, "secret should be fetched once")
	assert.Equal(t, "aws", p.Name())
}

func TestAWSProvider_Errors(t *testing.T) {
	boom := errors.New("access denied")
	p := newAWSProvider(&fakeSecretsManager{err: boom}, "s", zerolog.Nop())
	_, err := p.GetSecret(context.Background(), "KEY_0")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrKeyNotConfigured)

	p = newAWSProvider(&fakeSecretsManager{value: aws.String("not json")}, "s", zerolog.Nop())
	_, err = p.GetSecret(context.Background(), "KEY_0")
	assert.Error(t, err)

	p = newAWSProvider(&fakeSecretsManager{}, "s", zerolog.Nop())
	_, err = p.GetSecret(context.Background(), "KEY_0")
	assert.Error(t, err)
}
