package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func Test_Defaults_Cover_Every_Field(t *testing.T) {
	req := require.New(t)

	v := viper.New()
	SetDefaults(v)

	var cfg Config
	req.NoError(v.Unmarshal(&cfg))

	req.Equal("release", cfg.Mode)
	req.Equal(8080, cfg.Port)
	req.Equal(int64(32768), cfg.ReadLimit)
	req.Equal(54*time.Second, cfg.PingPeriod)
	req.Equal(32, cfg.SendBuffer)
	req.NotEmpty(cfg.Secret)
	req.Equal(24*time.Hour, cfg.TokenTTL)
	req.Equal(200, cfg.History.Limit)
	req.Equal(20, cfg.MessageRate.Limit)
	req.Equal(10*time.Second, cfg.MessageRate.Interval)
}

func Test_Load_Without_File_Uses_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("CONFIG_ENV", "nonexistent")

	cfg, err := Load()
	req.NoError(err)
	req.Equal(8080, cfg.Port)
	req.Equal("release", cfg.Mode)
}
