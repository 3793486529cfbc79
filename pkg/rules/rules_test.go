package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utc(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestNextTimezoneCorrection(t *testing.T) {
	engine := New()

	tests := []struct {
		name  string
		rule  string
		tz    string
		after string
		want  string
	}{
		{
			name:  "kolkata evening shutdown",
			rule:  "FREQ=DAILY;BYHOUR=21;BYMINUTE=0",
			tz:    "Asia/Kolkata",
			after: "2024-01-01T10:00:00Z",
			want:  "2024-01-01T15:30:00Z",
		},
		{
			name:  "utc same day",
			rule:  "FREQ=DAILY;BYHOUR=21;BYMINUTE=0",
			tz:    "UTC",
			after: "2024-01-01T10:00:45Z",
			want:  "2024-01-01T21:00:00Z",
		},
		{
			name:  "empty timezone means utc",
			rule:  "FREQ=DAILY;BYHOUR=6;BYMINUTE=30",
			tz:    "",
			after: "2024-01-01T10:00:00Z",
			want:  "2024-01-02T06:30:00Z",
		},
		{
			name:  "new york daylight time",
			rule:  "FREQ=DAILY;BYHOUR=9;BYMINUTE=0",
			tz:    "America/New_York",
			after: "2024-07-01T12:00:00Z",
			want:  "2024-07-01T13:00:00Z",
		},
		{
			name:  "new york standard time",
			rule:  "FREQ=DAILY;BYHOUR=9;BYMINUTE=0",
			tz:    "America/New_York",
			after: "2024-01-15T12:00:00Z",
			want:  "2024-01-15T14:00:00Z",
		},
		{
			name:  "weekday rule skips weekend",
			rule:  "FREQ=DAILY;BYDAY=MO,TU,WE,TH,FR;BYHOUR=21;BYMINUTE=0",
			tz:    "UTC",
			after: "2024-01-06T10:00:00Z", // Saturday
			want:  "2024-01-08T21:00:00Z",
		},
		{
			name:  "rrule prefix accepted",
			rule:  "RRULE:FREQ=WEEKLY;BYDAY=FR;BYHOUR=18;BYMINUTE=0",
			tz:    "UTC",
			after: "2024-01-01T00:00:00Z",
			want:  "2024-01-05T18:00:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok, err := engine.Next(tt.rule, tt.tz, utc(tt.after))
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, utc(tt.want), next)
		})
	}
}

func TestNextIsExclusive(t *testing.T) {
	engine := New()
	rule := "FREQ=DAILY;BYHOUR=21;BYMINUTE=0"

	first, ok, err := engine.Next(rule, "Asia/Kolkata", utc("2024-01-01T10:00:00Z"))
	require.NoError(t, err)
	require.True(t, ok)

	second, ok, err := engine.Next(rule, "Asia/Kolkata", first)
	require.NoError(t, err)
	require.True(t, ok)

	assert.NotEqual(t, first, second)
	assert.Equal(t, utc("2024-01-02T15:30:00Z"), second)
}

func TestNextIsMinuteNormalizedAndAfter(t *testing.T) {
	engine := New()
	rules := []string{
		"FREQ=MINUTELY;INTERVAL=5",
		"FREQ=HOURLY;BYMINUTE=15",
		"FREQ=DAILY;BYHOUR=3;BYMINUTE=45",
		"FREQ=WEEKLY;BYDAY=SU;BYHOUR=23;BYMINUTE=59",
		"FREQ=MONTHLY;BYMONTHDAY=-1;BYHOUR=18;BYMINUTE=0",
	}
	zones := []string{"UTC", "Asia/Kolkata", "America/New_York", "Australia/Adelaide", "Asia/Kathmandu"}
	base := utc("2024-03-09T22:17:00Z")

	for _, rule := range rules {
		for _, tz := range zones {
			for i := 0; i < 6; i++ {
				after := base.Add(time.Duration(i)*7*time.Hour + time.Duration(i*13)*time.Second + 250*time.Millisecond)
				next, ok, err := engine.Next(rule, tz, after)
				require.NoError(t, err, "%s %s", rule, tz)
				require.True(t, ok)
				assert.Zero(t, next.Second(), "%s %s", rule, tz)
				assert.Zero(t, next.Nanosecond(), "%s %s", rule, tz)
				assert.True(t, next.After(after), "%s in %s: %s not after %s", rule, tz, next, after)
			}
		}
	}
}

func TestNextExhaustedRule(t *testing.T) {
	engine := New()

	t.Run("count consumed", func(t *testing.T) {
		rule := "DTSTART:20240101T090000Z\nRRULE:FREQ=DAILY;COUNT=1"

		next, ok, err := engine.Next(rule, "UTC", utc("2023-12-31T12:00:00Z"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, utc("2024-01-01T09:00:00Z"), next)

		_, ok, err = engine.Next(rule, "UTC", next)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("until passed", func(t *testing.T) {
		rule := "FREQ=DAILY;BYHOUR=9;BYMINUTE=0;UNTIL=20240105T000000Z"
		_, ok, err := engine.Next(rule, "UTC", utc("2024-01-10T00:00:00Z"))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestNextErrors(t *testing.T) {
	engine := New()

	_, _, err := engine.Next("FREQ=SOMETIMES", "UTC", time.Now())
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, _, err = engine.Next("BYHOUR=21", "UTC", time.Now())
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, _, err = engine.Next("", "UTC", time.Now())
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, _, err = engine.Next("FREQ=DAILY", "Mars/Olympus_Mons", time.Now())
	assert.ErrorIs(t, err, ErrInvalidTimezone)
}

func TestAnchorConsumesCount(t *testing.T) {
	engine := New()
	created := utc("2024-01-01T10:00:30Z")

	rule, err := Anchor("FREQ=DAILY;COUNT=2;BYHOUR=21;BYMINUTE=0", "Asia/Kolkata", created)
	require.NoError(t, err)
	assert.Equal(t, "DTSTART:20240101T153000Z\nRRULE:FREQ=DAILY;COUNT=2;BYHOUR=21;BYMINUTE=0", rule)

	first, ok, err := engine.Next(rule, "Asia/Kolkata", created)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, utc("2024-01-01T15:30:00Z"), first)

	second, ok, err := engine.Next(rule, "Asia/Kolkata", first)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, utc("2024-01-02T15:30:00Z"), second)

	_, ok, err = engine.Next(rule, "Asia/Kolkata", second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAnchorKeepsExistingDtstart(t *testing.T) {
	in := "DTSTART:20240101T090000Z\nRRULE:FREQ=DAILY"
	out, err := Anchor("  "+in+"\n", "UTC", time.Now())
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestBetween(t *testing.T) {
	engine := New()

	got, err := engine.Between("FREQ=DAILY;BYHOUR=9;BYMINUTE=0",
		utc("2024-01-01T00:00:00Z"), utc("2024-01-03T09:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		utc("2024-01-01T09:00:00Z"),
		utc("2024-01-02T09:00:00Z"),
		utc("2024-01-03T09:00:00Z"),
	}, got)

	_, err = engine.Between("FREQ=DAILY", utc("2024-01-03T00:00:00Z"), utc("2024-01-01T00:00:00Z"))
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	got, err := Preview(New(), "FREQ=DAILY;BYHOUR=21;BYMINUTE=0", "Asia/Kolkata", utc("2024-01-01T10:00:00Z"), 3)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		utc("2024-01-01T15:30:00Z"),
		utc("2024-01-02T15:30:00Z"),
		utc("2024-01-03T15:30:00Z"),
	}, got)

	got, err = Preview(New(), "DTSTART:20240101T090000Z\nRRULE:FREQ=DAILY;COUNT=2", "UTC", utc("2023-12-01T00:00:00Z"), 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestValid(t *testing.T) {
	engine := New()
	assert.True(t, engine.Valid("FREQ=DAILY;BYHOUR=21;BYMINUTE=0"))
	assert.True(t, engine.Valid("DTSTART:20240101T090000Z\nRRULE:FREQ=WEEKLY;BYDAY=MO"))
	assert.False(t, engine.Valid("FREQ=DAILY;BYHOUR=x"))
	assert.False(t, engine.Valid("not a rule"))
	assert.False(t, engine.Valid(""))
}

func TestDescribe(t *testing.T) {
	engine := New()

	tests := map[string]string{
		"FREQ=DAILY;BYHOUR=21;BYMINUTE=0":                        "every day at 21:00",
		"FREQ=DAILY;BYDAY=MO,TU,WE,TH,FR;BYHOUR=6;BYMINUTE=0":    "every day on weekdays at 06:00",
		"FREQ=DAILY;BYDAY=SA,SU;BYHOUR=10;BYMINUTE=0":            "every day on weekends at 10:00",
		"FREQ=MONTHLY;BYMONTHDAY=-1;BYHOUR=18;BYMINUTE=0":        "every month on the last day of the month at 18:00",
		"FREQ=WEEKLY;INTERVAL=2;BYDAY=MO;COUNT=3":                "every 2 weeks on Monday for 3 times",
		"FREQ=WEEKLY;BYDAY=MO,FR;BYHOUR=9;BYMINUTE=0,30":         "every week on Monday and Friday at 09:00 and 09:30",
		"FREQ=HOURLY;BYMINUTE=15":                                "every hour at minute :15",
		"FREQ=DAILY;BYHOUR=2;BYMINUTE=0;COUNT=1":                 "every day at 02:00 once",
		"garbage":                                                "Invalid rule",
	}

	for rule, want := range tests {
		assert.Equal(t, want, engine.Describe(rule), rule)
	}
}

func TestPatternsAreValid(t *testing.T) {
	engine := New()
	all := Patterns(engine)
	require.Len(t, all, 10)

	for _, p := range all {
		assert.True(t, engine.Valid(p.Rule), p.Name)
		assert.NotEqual(t, "Invalid rule", p.Description, p.Name)
	}

	rule, ok := PatternRule("DAILY_9PM")
	assert.True(t, ok)
	assert.Equal(t, "FREQ=DAILY;BYHOUR=21;BYMINUTE=0", rule)
}
