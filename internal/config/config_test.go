package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults(t *testing.T) {
	c := &Config{}
	c.applyDefaults()

	assert.Equal(t, "8080", c.Server.Port)
	assert.Equal(t, "dev", c.Server.Env)
	assert.Equal(t, 900, c.Redis.TTLEvidenceSec)
	assert.Equal(t, 256, c.Budget.MaxEdges)
	assert.Equal(t, 8, c.Budget.MaxEvents)
	assert.Equal(t, 2048, c.LLM.ContextWindow)
	assert.Equal(t, 320, c.LLM.ShortAnswerMaxChar)
	assert.Equal(t, []string{"low", "medium", "high"}, c.SensitivityOrderList())
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LLM_MODE", "off")
	t.Setenv("CITE_ALL_IDS", "true")

	c := &Config{}
	c.applyDefaults()
	c.applyEnvOverrides()

	assert.Equal(t, "9090", c.Server.Port)
	assert.Equal(t, "off", c.LLM.Mode)
	assert.True(t, c.Budget.CiteAllIDs)
}

func TestIsProductionDevelopment(t *testing.T) {
	c := &Config{Server: ServerConfig{Env: "production"}}
	assert.True(t, c.IsProduction())
	assert.False(t, c.IsDevelopment())
}
