package database

import (
	"mcq_tutor_backend/internal/config"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldMigrate(t *testing.T) {
	// debug 模式每次启动都迁移
	debug := &config.Config{Server: config.ServerConfig{Mode: "debug"}}
	assert.True(t, ShouldMigrate(debug))

	// release 模式默认不迁移
	release := &config.Config{Server: config.ServerConfig{Mode: "release"}}
	assert.False(t, ShouldMigrate(release))

	// -migrate / -migrate-only 强制迁移
	release.ForceMigrate = true
	assert.True(t, ShouldMigrate(release))
}
