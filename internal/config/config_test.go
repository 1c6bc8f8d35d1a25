package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	req := require.New(t)

	cfg, err := LoadConfig()
	req.NoError(err)
	req.Equal("8000", cfg.Port)
	req.Equal(":8000", cfg.Addr())
	req.Equal(DriverMongo, cfg.Store.Driver)
	req.Equal("mongodb://localhost:27017", cfg.Store.MongoURI)
	req.Equal("chat_app", cfg.Store.MongoDatabase)
	req.Equal("messages", cfg.Store.MongoCollection)
	req.Equal([]string{"http://localhost:3000"}, cfg.AllowedOrigins)
	req.Equal(5*time.Second, cfg.SendTimeout)
	req.Equal(256, cfg.SendBuffer)
	req.Equal(slog.LevelInfo, cfg.Level())
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	req := require.New(t)
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("SEND_TIMEOUT", "250ms")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	req.NoError(err)
	req.Equal(":9090", cfg.Addr())
	req.Equal(DriverPostgres, cfg.Store.Driver)
	req.Equal("host=db port=5432 user=postgres password=secret dbname=chat_app sslmode=disable", cfg.Store.DBConnString())
	req.Equal([]string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	req.Equal(250*time.Millisecond, cfg.SendTimeout)
	req.Equal(slog.LevelDebug, cfg.Level())
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown driver", key: "STORE_DRIVER", value: "sqlite"},
		{name: "zero timeout", key: "SEND_TIMEOUT", value: "0s"},
		{name: "negative buffer", key: "SEND_BUFFER", value: "-1"},
		{name: "unparsable size", key: "MAX_MESSAGE_SIZE", value: "big"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestLevel_FallsBackToInfo(t *testing.T) {
	cfg := Config{LogLevel: "chatty"}
	require.Equal(t, slog.LevelInfo, cfg.Level())
}
