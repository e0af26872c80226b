package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/gridpulse/pulse/calendar"
)

func TestBuiltinProfiles(t *testing.T) {
	g := NewGate()

	tests := []struct {
		profile string
		dayType calendar.DayType
		blocked []int
	}{
		{Strict, calendar.Standard, []int{18, 19, 20, 21, 22}},
		{Strict, calendar.Weekend, []int{12, 13, 18, 19, 20, 21}},
		{NightOnly, calendar.Standard, []int{7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23}},
		{NightOnly, calendar.Weekend, []int{7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23}},
		{IgnoreTime, calendar.Standard, nil},
		{IgnoreTime, calendar.Weekend, nil},
	}

	for _, tt := range tests {
		t.Run(tt.profile+"/"+string(tt.dayType), func(t *testing.T) {
			var got []int
			for h := 0; h < 24; h++ {
				if g.IsBlocked(tt.profile, tt.dayType, h) {
					got = append(got, h)
				}
			}
			assert.Equal(t, tt.blocked, got)
		})
	}
}

func TestUnknownProfileFailsOpen(t *testing.T) {
	g := NewGate()
	for h := 0; h < 24; h++ {
		assert.False(t, g.IsBlocked("NO_SUCH_PROFILE", calendar.Standard, h))
	}
	assert.False(t, g.Known("NO_SUCH_PROFILE"))
}

func TestProfileNamesAreCaseInsensitive(t *testing.T) {
	g := NewGate()
	assert.True(t, g.IsBlocked("strict", calendar.Standard, 19))
	assert.True(t, g.IsBlocked("Night_Only", calendar.Weekend, 7))
	assert.False(t, g.IsBlocked("night_only", calendar.Weekend, 6))
}

func TestCustomProfileOverridesBuiltin(t *testing.T) {
	evenings, err := NewHourSet(17, 18)
	require.NoError(t, err)

	g := NewGate(
		TimeProfile{Name: "strict", Blocked: map[calendar.DayType]HourSet{calendar.Standard: evenings}},
		TimeProfile{Name: "office", Blocked: map[calendar.DayType]HourSet{calendar.Standard: evenings}},
	)

	assert.True(t, g.IsBlocked(Strict, calendar.Standard, 17))
	assert.False(t, g.IsBlocked(Strict, calendar.Standard, 20))
	assert.False(t, g.IsBlocked(Strict, calendar.Weekend, 12), "override has no weekend hours")
	assert.True(t, g.IsBlocked("OFFICE", calendar.Standard, 18))
	assert.Equal(t, []string{IgnoreTime, NightOnly, "office", "strict"}, g.Names())
}

func TestBlocksAt(t *testing.T) {
	g := NewGate()
	at := time.Date(2026, 3, 3, 19, 30, 0, 0, time.UTC)
	assert.True(t, g.BlocksAt(Strict, calendar.Standard, at))
	assert.False(t, g.BlocksAt(Strict, calendar.Standard, at.Add(-2*time.Hour)))
}

func TestHourSet(t *testing.T) {
	s, err := NewHourSet(0, 23, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 5, 23}, s.Hours())
	assert.False(t, s.Contains(24))
	assert.False(t, s.Contains(-1))

	_, err = NewHourSet(24)
	assert.Error(t, err)
}
