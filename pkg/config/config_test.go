package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "event-registration", cfg.App.Name)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Minute, cfg.Cache.EventTTL)
	assert.Equal(t, 100*time.Millisecond, cfg.Outbox.PollInterval)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("JWT_ACCESS_TOKEN_TTL", "1h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Hour, cfg.JWT.AccessTokenTTL)
}

func TestLoadFromViper_FlagValuesWin(t *testing.T) {
	v := viper.New()
	v.Set("STORE_DRIVER", "mongo")
	v.Set("MONGODB_DATABASE", "from_flag")

	cfg, err := LoadFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMongo, cfg.Store.Driver)
	assert.Equal(t, "from_flag", cfg.MongoDB.Database)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "unknown store driver",
			env:     map[string]string{"STORE_DRIVER": "sqlite"},
			wantErr: "unknown store driver",
		},
		{
			name:    "invalid port",
			env:     map[string]string{"SERVER_PORT": "70000"},
			wantErr: "invalid server port",
		},
		{
			name:    "default secret in production",
			env:     map[string]string{"APP_ENVIRONMENT": "production"},
			wantErr: "JWT secret must be changed",
		},
		{
			name:    "kafka enabled without brokers",
			env:     map[string]string{"KAFKA_BROKERS": " , "},
			wantErr: "KAFKA_BROKERS is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_URL(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/n?sslmode=disable", d.URL())
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())
}
