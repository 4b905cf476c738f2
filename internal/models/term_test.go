package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTermRegistrationOpenAt(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	term := Term{
		RegistrationStart: base,
		RegistrationEnd:   base.AddDate(0, 0, 14),
		AddDropDeadline:   base.AddDate(0, 0, 21),
	}

	assert.False(t, term.RegistrationOpenAt(base.Add(-time.Minute)), "before window")
	assert.True(t, term.RegistrationOpenAt(base), "window opens inclusively")
	assert.True(t, term.RegistrationOpenAt(base.AddDate(0, 0, 7)))
	assert.True(t, term.RegistrationOpenAt(base.AddDate(0, 0, 14)), "window closes inclusively")
	assert.False(t, term.RegistrationOpenAt(base.AddDate(0, 0, 14).Add(time.Minute)), "after window")
}

func TestTermRegistrationClosedAfterAddDrop(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	term := Term{
		RegistrationStart: base,
		RegistrationEnd:   base.AddDate(0, 0, 30),
		AddDropDeadline:   base.AddDate(0, 0, 10),
	}
	assert.True(t, term.RegistrationOpenAt(base.AddDate(0, 0, 10)))
	assert.False(t, term.RegistrationOpenAt(base.AddDate(0, 0, 11)), "add/drop deadline caps the window")
}
