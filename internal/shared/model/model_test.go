// Package model Bot/Connection 模型测试
package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestBot_HasCapability 验证能力查询
func TestBot_HasCapability(t *testing.T) {
	bot := &Bot{
		ID:           "bot-organizer",
		Capabilities: []string{"organize_files", "create_folder"},
	}

	assert.True(t, bot.HasCapability("organize_files"))
	assert.False(t, bot.HasCapability("chat"))

	empty := &Bot{ID: "bot-empty"}
	assert.False(t, empty.HasCapability("anything"))
}

// TestClampHealth 验证健康度收敛到 [0, 100]
func TestClampHealth(t *testing.T) {
	assert.Equal(t, 0, ClampHealth(-10))
	assert.Equal(t, 0, ClampHealth(0))
	assert.Equal(t, 55, ClampHealth(55))
	assert.Equal(t, 100, ClampHealth(100))
	assert.Equal(t, 100, ClampHealth(170))
}

// TestConnectionStatus_CanTransitionTo 验证连接状态机
func TestConnectionStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from ConnectionStatus
		to   ConnectionStatus
		want bool
	}{
		{ConnectionStatusDisconnected, ConnectionStatusConnecting, true},
		{ConnectionStatusDisconnected, ConnectionStatusConnected, false},
		{ConnectionStatusConnecting, ConnectionStatusConnected, true},
		{ConnectionStatusConnecting, ConnectionStatusError, true},
		{ConnectionStatusConnecting, ConnectionStatusExpired, false},
		{ConnectionStatusConnected, ConnectionStatusExpired, true},
		{ConnectionStatusConnected, ConnectionStatusError, true},
		{ConnectionStatusConnected, ConnectionStatusConnecting, false},
		{ConnectionStatusError, ConnectionStatusConnecting, true},
		{ConnectionStatusExpired, ConnectionStatusConnecting, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}
