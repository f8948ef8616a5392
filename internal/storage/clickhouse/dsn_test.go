package clickhouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDSN(t *testing.T) {
	opts, err := parseDSN("clickhouse://user:pw@db.local/analytics")
	require.NoError(t, err)
	assert.Equal(t, []string{"db.local:9000"}, opts.Addr)
	assert.Equal(t, "user", opts.Auth.Username)
	assert.Equal(t, "pw", opts.Auth.Password)
	assert.Equal(t, "analytics", opts.Auth.Database)

	opts, err = parseDSN("clickhouse://localhost:9440/db?dial_timeout=3s&secure=true")
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:9440"}, opts.Addr)
	assert.Equal(t, 3*time.Second, opts.DialTimeout)
	assert.NotNil(t, opts.TLS)

	_, err = parseDSN("clickhouse://localhost/db?dial_timeout=soon")
	assert.Error(t, err)

	_, err = parseDSN("postgres://localhost/x")
	assert.Error(t, err)
}
