package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestPerUser_BucketsAreIndependent(t *testing.T) {
	l := NewPerUser(rate.Limit(0.001), 2)

	assert.True(t, l.Allow("u1"))
	assert.True(t, l.Allow("u1"))
	assert.False(t, l.Allow("u1"))

	// a different user still has a full bucket
	assert.True(t, l.Allow("u2"))
}
