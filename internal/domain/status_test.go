package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_IsValid(t *testing.T) {
	for _, s := range AllStatuses() {
		assert.True(t, s.IsValid(), string(s))
	}

	assert.False(t, Status("").IsValid())
	assert.False(t, Status("online").IsValid())
	assert.False(t, Status("Resolved").IsValid())
}

func TestStatus_Emoji(t *testing.T) {
	assert.Equal(t, "✅", StatusResolved.Emoji())
	assert.Equal(t, "☢️", StatusDegraded.Emoji())
	assert.Equal(t, "⛔️", StatusDown.Emoji())
	assert.Equal(t, "⚠️", StatusAtRisk.Emoji())
	assert.Equal(t, "⚠️", Status("garbage").Emoji())
}
