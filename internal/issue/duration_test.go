package issue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tordoctor/doctor/internal/types"
)

func TestDefaultDuration(t *testing.T) {
	assert.Equal(t, 24*time.Hour, DefaultDuration(types.SeverityNotice))
	assert.Equal(t, 4*time.Hour, DefaultDuration(types.SeverityWarning))
	assert.Equal(t, time.Duration(0), DefaultDuration(types.SeverityError))
}

func TestDurations_Override(t *testing.T) {
	d := NewDurations(map[Template]time.Duration{
		MissingSignature: 2 * time.Hour,
		MissingVotes:     -time.Hour,
	})

	sig := MustNew(types.SeverityNotice, MissingSignature, Params{"consensus_of": "a", "authorities": "b"})
	votes := MustNew(types.SeverityNotice, MissingVotes, Params{"authorities": "b"})
	other := MustNew(types.SeverityWarning, MissingAuthorities, Params{"authorities": "b"})

	assert.Equal(t, 2*time.Hour, d.For(sig))
	assert.Equal(t, time.Duration(0), d.For(votes))
	assert.Equal(t, 4*time.Hour, d.For(other))
}

func TestDurations_Longest(t *testing.T) {
	assert.Equal(t, 24*time.Hour, NewDurations(nil).Longest())
	assert.Equal(t, 48*time.Hour, NewDurations(map[Template]time.Duration{
		MissingSignature: 48 * time.Hour,
		MissingVotes:     time.Hour,
	}).Longest())
}
