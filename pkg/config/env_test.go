package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEnvironment(t *testing.T) {
	tests := []struct {
		in             string
		want           string
		productionLike bool
	}{
		{"development", EnvDevelopment, false},
		{"DEVELOPMENT", EnvDevelopment, false},
		{" staging ", EnvStaging, true},
		{"Production", EnvProduction, true},
		{"", EnvDevelopment, false},
		{"qa", "qa", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeEnvironment(tt.in))
			assert.Equal(t, tt.productionLike, IsProductionLike(tt.in))
		})
	}
}

func TestServerConfig_IsDevelopment(t *testing.T) {
	assert.True(t, ServerConfig{}.IsDevelopment())
	assert.True(t, ServerConfig{Environment: "Development"}.IsDevelopment())
	assert.False(t, ServerConfig{Environment: EnvProduction}.IsDevelopment())
}
