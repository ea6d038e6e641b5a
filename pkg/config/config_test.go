package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

func TestNewPoolConfigDefaults(t *testing.T) {
	cfg := NewPoolConfig()

	assert.Equal(t, "channel", cfg.Driver)
	assert.Equal(t, 8, cfg.MaximumPoolSize)
	assert.Equal(t, 4, cfg.MinimumPoolSize)
	assert.Equal(t, 60*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.CheckoutTimeout)
	assert.False(t, cfg.ValidateOnCheckout)
	assert.Equal(t, 1000, cfg.Statistics.SnapshotSize)
	assert.Equal(t, 10*time.Millisecond, cfg.Statistics.SnapshotInterval)
	require.NoError(t, cfg.Validate())
}

func TestValidatePoolSize(t *testing.T) {
	tests := []struct {
		name     string
		min, max int
		wantErr  bool
	}{
		{"defaults", 4, 8, false},
		{"equal", 3, 3, false},
		{"zero minimum", 0, 1, false},
		{"upper bound", 0, 1000, false},
		{"maximum below minimum", 5, 4, true},
		{"maximum zero", 0, 0, true},
		{"maximum too large", 0, 1001, true},
		{"negative minimum", -1, 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePoolSize(tt.min, tt.max)
			if tt.wantErr {
				assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRejectsNonPositiveTimeouts(t *testing.T) {
	cfg := NewPoolConfig()
	cfg.IdleTimeout = 0
	assert.True(t, poolerrors.IsType(cfg.Validate(), poolerrors.ErrorTypeConfig))

	cfg = NewPoolConfig()
	cfg.CheckoutTimeout = -time.Second
	assert.True(t, poolerrors.IsType(cfg.Validate(), poolerrors.ErrorTypeConfig))

	cfg = NewPoolConfig()
	cfg.Statistics.SnapshotSize = 0
	assert.True(t, poolerrors.IsType(cfg.Validate(), poolerrors.ErrorTypeConfig))
}

func TestLoadSubstitutesEnvironment(t *testing.T) {
	t.Setenv("DBPOOL_TEST_PASSWORD", "tiger")

	path := filepath.Join(t.TempDir(), "pool.yaml")
	content := `
name: orders
database:
  type: postgres
  url: postgres://localhost:5432/orders
  username: scott
  password: ${DBPOOL_TEST_PASSWORD}
maximum_pool_size: 16
validate_on_checkout: true
statistics:
  collect_snapshots: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "orders", cfg.Name)
	assert.Equal(t, "tiger", cfg.Database.Password)
	assert.Equal(t, 16, cfg.MaximumPoolSize)
	assert.Equal(t, 4, cfg.MinimumPoolSize)
	assert.True(t, cfg.ValidateOnCheckout)
	assert.True(t, cfg.Statistics.CollectSnapshots)
	assert.Equal(t, DefaultSnapshotInterval, cfg.Statistics.SnapshotInterval)
}

func TestLoadRejectsInvalidSizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte("maximum_pool_size: 2\nminimum_pool_size: 3\n"), 0600))

	_, err := Load(path)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.yaml")
	cfg := NewPoolConfig()
	cfg.Name = "reports"
	cfg.Database.Type = "mysql"

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("A_VAR", "x")
	assert.Equal(t, "x-x-", substituteEnvVars("${A_VAR}-${A_VAR}-${UNSET_DBPOOL_VAR}"))
	assert.Equal(t, "open ${brace", substituteEnvVars("open ${brace"))
}
