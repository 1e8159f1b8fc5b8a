package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault_MatchesDocumentedDefaults(t *testing.T) {
	def := Default()
	assert.Equal(t, 60, def.General.PollingIntervalS)
	assert.Equal(t, "PASSIVE", def.EmergencyUnmount.Mode)
	assert.Equal(t, 1800, def.EmergencyUnmount.CooldownS)
	assert.Equal(t, 1024, def.Logging.RetentionSizeKB)
	assert.True(t, def.GDC.Enabled)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	loader := Load("ghostwatchd-test-nonexistent-app")
	cfg := loader.Current()
	assert.Equal(t, Default(), cfg)
}

func TestValidate_RejectsOutOfRangePollingInterval(t *testing.T) {
	cfg := Default()
	cfg.General.PollingIntervalS = 5
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownUnmountMode(t *testing.T) {
	cfg := Default()
	cfg.EmergencyUnmount.Mode = "YOLO"
	assert.Error(t, cfg.Validate())
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
