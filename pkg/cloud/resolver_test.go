package cloud

import (
	"context"
	"testing"

	"github.com/cloudevy/downtime-scheduler/pkg/credentials"
	"github.com/cloudevy/downtime-scheduler/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encrypted(t *testing.T, m *credentials.Manager, doc string) string {
	enc, err := m.Encrypt([]byte(doc))
	require.NoError(t, err)
	return enc
}

func TestResolveAWS(t *testing.T) {
	mgr, err := credentials.NewManagerFromPassword("test-key")
	require.NoError(t, err)

	var gotRegion string
	var gotCreds credentials.AWS
	r := NewResolver(mgr).WithEC2Factory(func(ctx context.Context, region string, creds credentials.AWS) (EC2API, error) {
		gotRegion, gotCreds = region, creds
		return &mockEC2{}, nil
	})

	account := &types.CloudAccount{
		ID: "a1", Provider: types.ProviderAWS, Region: "eu-west-1",
		Credentials: encrypted(t, mgr, `{"accessKey":"AKIA","secretKey":"s"}`),
	}

	tests := []struct {
		name         string
		serverRegion string
		accountRegn  string
		want         string
	}{
		{name: "server region wins", serverRegion: "ap-south-1", accountRegn: "eu-west-1", want: "ap-south-1"},
		{name: "account region", accountRegn: "eu-west-1", want: "eu-west-1"},
		{name: "default region", want: DefaultRegion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account.Region = tt.accountRegn
			p, err := r.Resolve(context.Background(), &types.Server{Provider: types.ProviderAWS, Region: tt.serverRegion}, account)
			require.NoError(t, err)
			assert.NotNil(t, p)
			assert.Equal(t, tt.want, gotRegion)
			assert.Equal(t, "AKIA", gotCreds.AccessKeyID)
			assert.Equal(t, "s", gotCreds.SecretAccessKey)
		})
	}
}

func TestResolveErrors(t *testing.T) {
	mgr, err := credentials.NewManagerFromPassword("test-key")
	require.NoError(t, err)
	r := NewResolver(mgr).WithEC2Factory(func(context.Context, string, credentials.AWS) (EC2API, error) {
		return &mockEC2{}, nil
	})
	ctx := context.Background()
	aws := &types.Server{Provider: types.ProviderAWS}

	_, err = r.Resolve(ctx, nil, nil)
	assert.Error(t, err)

	_, err = r.Resolve(ctx, aws, nil)
	assert.ErrorContains(t, err, "credentials are required")

	_, err = r.Resolve(ctx, aws, &types.CloudAccount{Credentials: "not-encrypted"})
	assert.ErrorContains(t, err, "decrypt")

	_, err = r.Resolve(ctx, aws, &types.CloudAccount{Credentials: encrypted(t, mgr, `{"accessKeyId":"only"}`)})
	assert.Error(t, err)

	_, err = r.Resolve(ctx, &types.Server{Provider: "oracle"}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestResolveUnsupportedVendors(t *testing.T) {
	r := NewResolver(nil)
	ctx := context.Background()

	for _, provider := range []types.Provider{types.ProviderAzure, types.ProviderGCP} {
		p, err := r.Resolve(ctx, &types.Server{Provider: provider}, nil)
		require.NoError(t, err)

		_, err = p.InstanceState(ctx, "vm-1")
		assert.ErrorIs(t, err, ErrUnsupportedProvider)
		assert.ErrorContains(t, err, string(provider)+" support coming soon")
		assert.ErrorIs(t, p.Stop(ctx, "vm-1"), ErrUnsupportedProvider)
		assert.ErrorIs(t, p.ModifyVolume(ctx, "d", VolumeModification{}), ErrUnsupportedProvider)
	}
}
