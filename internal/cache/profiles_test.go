package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/agrotender/internal/model"
)

func TestProfileCache_SetGet(t *testing.T) {
	c, err := NewProfileCache(100, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get(7)
	assert.False(t, ok)

	c.Set(model.VendorProfile{VendorID: 7, Rating: 4.5, ExperienceYears: 3})
	c.Wait()

	got, ok := c.Get(7)
	require.True(t, ok)
	assert.Equal(t, 4.5, got.Rating)
	assert.Equal(t, 3.0, got.ExperienceYears)
}
