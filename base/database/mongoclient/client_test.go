package mongoclient

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/x-xyz/goauction/base/ctx"
)

func TestClientOptions(t *testing.T) {
	uri := "mongodb://user:pass@h1:27017,h2:27017/?retryWrites=true"
	conn, err := connstring.Parse(uri)
	require.NoError(t, err)

	opts := clientOptions(ctx.Background(), Config{URI: uri, AuthDB: "admin", PoolMultiplier: 1000, Majority: true}, conn)
	require.NotNil(t, opts.Auth)
	require.Equal(t, "admin", opts.Auth.AuthSource)
	require.Equal(t, "user", opts.Auth.Username)
	require.NotNil(t, opts.MaxPoolSize)
	require.NotNil(t, opts.MinPoolSize)
	require.Equal(t, *opts.MaxPoolSize/4, *opts.MinPoolSize)
	require.NotNil(t, opts.WriteConcern)
	require.Nil(t, opts.TLSConfig)
}

func TestClientOptionsKeepsAuthSource(t *testing.T) {
	uri := "mongodb://user:pass@h1:27017/?authSource=users"
	conn, err := connstring.Parse(uri)
	require.NoError(t, err)

	opts := clientOptions(ctx.Background(), Config{URI: uri, AuthDB: "admin", SSL: true}, conn)
	require.Equal(t, "users", opts.Auth.AuthSource)
	require.LessOrEqual(t, *opts.MinPoolSize, *opts.MaxPoolSize)
	require.NotNil(t, opts.TLSConfig)
	require.Nil(t, opts.WriteConcern)
}

func TestConnectBadURI(t *testing.T) {
	_, err := Connect(ctx.Background(), Config{URI: "not-a-uri", DB: "auction"})
	require.Error(t, err)
}
