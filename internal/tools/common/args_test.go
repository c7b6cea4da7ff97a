package common

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringArgs(t *testing.T) {
	args := map[string]any{"summary": "Dentist", "count": 3.0, "empty": ""}

	assert.Equal(t, "Dentist", StringArg(args, "summary"))
	assert.Empty(t, StringArg(args, "count"))
	assert.Empty(t, StringArg(nil, "summary"))

	v, err := RequiredString(args, "summary")
	require.NoError(t, err)
	assert.Equal(t, "Dentist", v)

	_, err = RequiredString(args, "empty")
	assert.EqualError(t, err, "empty is required")
}

func TestIntArg(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    int64
		present bool
		wantErr bool
	}{
		{name: "missing", value: nil},
		{name: "json number", value: 25.0, want: 25, present: true},
		{name: "int", value: 7, want: 7, present: true},
		{name: "fraction", value: 2.5, wantErr: true},
		{name: "string", value: "10", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]any{}
			if tt.value != nil {
				args["maxResults"] = tt.value
			}
			got, present, err := IntArg(args, "maxResults")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.present, present)
		})
	}
}

func TestLocationArg(t *testing.T) {
	loc, err := LocationArg(map[string]any{}, "timeZone")
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	loc, err = LocationArg(map[string]any{"timeZone": "Asia/Taipei"}, "timeZone")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Taipei", loc.String())

	_, err = LocationArg(map[string]any{"timeZone": "Mars/Olympus"}, "timeZone")
	assert.ErrorContains(t, err, "invalid timeZone")
}

func TestParseTime(t *testing.T) {
	taipei, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)

	tests := []struct {
		name   string
		value  string
		want   time.Time
		allDay bool
		errMsg string
	}{
		{
			name:   "date",
			value:  "2026-03-20",
			want:   time.Date(2026, 3, 20, 0, 0, 0, 0, taipei),
			allDay: true,
		},
		{
			name:  "rfc3339 keeps its offset",
			value: "2026-03-20T09:30:00Z",
			want:  time.Date(2026, 3, 20, 9, 30, 0, 0, time.UTC),
		},
		{
			name:  "local minutes",
			value: "2026-03-20T09:30",
			want:  time.Date(2026, 3, 20, 9, 30, 0, 0, taipei),
		},
		{
			name:  "local with space",
			value: "2026-03-20 18:05",
			want:  time.Date(2026, 3, 20, 18, 5, 0, 0, taipei),
		},
		{
			name:   "garbage",
			value:  "tomorrow",
			errMsg: `invalid time "tomorrow"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, allDay, err := ParseTime(tt.value, taipei)
			if tt.errMsg != "" {
				assert.ErrorContains(t, err, tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
			assert.Equal(t, tt.allDay, allDay)
		})
	}
}
