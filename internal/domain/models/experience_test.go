package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExperienceState_Transitions(t *testing.T) {
	assert.True(t, StatePending.CanTransitionTo(StateApproved))
	assert.True(t, StatePending.CanTransitionTo(StateRejected))
	assert.False(t, StateApproved.CanTransitionTo(StatePending))
	assert.False(t, StateApproved.CanTransitionTo(StateRejected))
	assert.False(t, StateRejected.CanTransitionTo(StateApproved))
	assert.False(t, ExperienceState("archived").CanTransitionTo(StateApproved))

	assert.False(t, StatePending.Terminal())
	assert.True(t, StateApproved.Terminal())
	assert.True(t, StateRejected.Terminal())
	assert.False(t, ExperienceState("bogus").Valid())
}

func TestExperienceFilter_Normalize(t *testing.T) {
	f := ExperienceFilter{Page: 0, Limit: 500}
	f.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, DefaultPageLimit, f.Limit)
	assert.Equal(t, 0, f.Offset())

	f = ExperienceFilter{Page: 3, Limit: 20}
	f.Normalize()
	assert.Equal(t, 40, f.Offset())
}

func TestUploadPolicy_Check(t *testing.T) {
	policy := UploadPolicy{AllowedMimeTypes: []string{"image/jpeg", "image/png"}, MaxFileSize: 1024}

	assert.NoError(t, policy.Check("image/jpeg", 512))
	assert.NoError(t, policy.Check("IMAGE/PNG; charset=binary", 1024))

	err := policy.Check("image/gif", 10)
	assert.ErrorIs(t, err, ErrValidation)
	assert.True(t, IsValidationError(err))

	err = policy.Check("image/png", 2048)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "exceeds limit")

	assert.Error(t, policy.Check("image/png", 0))
}

func TestTrimmedOrNil(t *testing.T) {
	assert.Nil(t, TrimmedOrNil("   "))
	v := TrimmedOrNil("  view from the hill ")
	if assert.NotNil(t, v) {
		assert.Equal(t, "view from the hill", *v)
	}
}
