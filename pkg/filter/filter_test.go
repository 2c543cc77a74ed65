package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetconf/shepherd/pkg/types"
)

func TestParseAge(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{input: "2w", expected: 14 * 24 * time.Hour},
		{input: "3d", expected: 72 * time.Hour},
		{input: "12h", expected: 12 * time.Hour},
		{input: "90m", expected: 90 * time.Minute},
		{input: "0h", expected: 0},
		{input: "1w2d3h4m", expected: 9*24*time.Hour + 3*time.Hour + 4*time.Minute},
		{input: "2d12h", expected: 60 * time.Hour},
		{input: "4m1w", expected: 7*24*time.Hour + 4*time.Minute},
		{input: "", wantErr: true},
		{input: "12", wantErr: true},
		{input: "h", wantErr: true},
		{input: "-3d", wantErr: true},
		{input: "3s", wantErr: true},
		{input: "1.5h", wantErr: true},
		{input: "1w 2d", wantErr: true},
		{input: "2d3s", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAge(tt.input)
			if tt.wantErr {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseTags(t *testing.T) {
	tags, err := ParseTags("rack=r1,role=compute")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"rack": "r1", "role": "compute"}, tags)

	tags, err = ParseTags("")
	require.NoError(t, err)
	assert.Nil(t, tags)

	// An empty value is valid; it means "remove" in patch context.
	tags, err = ParseTags("role=")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"role": ""}, tags)

	_, err = ParseTags("noequals")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = ParseTags("=value")
	require.ErrorAs(t, err, &verr)
}

func TestCursorRoundTrip(t *testing.T) {
	f := &ComponentFilter{Config: "base"}
	fp := Fingerprint(f)

	cursor := EncodeCursor("node42", fp)
	after, err := DecodeCursor(cursor, fp)
	require.NoError(t, err)
	assert.Equal(t, "node42", after)

	// Empty cursor means start from the beginning.
	after, err = DecodeCursor("", fp)
	require.NoError(t, err)
	assert.Empty(t, after)
}

func TestCursorRejectsDifferentFilter(t *testing.T) {
	fp1 := Fingerprint(&ComponentFilter{Config: "base"})
	fp2 := Fingerprint(&ComponentFilter{Config: "other"})
	require.NotEqual(t, fp1, fp2)

	cursor := EncodeCursor("node42", fp1)
	_, err := DecodeCursor(cursor, fp2)
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("not!!base64", 0)
	assert.ErrorIs(t, err, ErrInvalidCursor)

	_, err = DecodeCursor("bm90LWpzb24", 0) // valid base64, not JSON
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestComponentFilterMatch(t *testing.T) {
	enabled := true
	comp := &types.Component{
		ID:            "node1",
		DesiredConfig: "base",
		Status:        types.StatusFailed,
		Enabled:       true,
		Tags:          map[string]string{"rack": "r1"},
	}

	tests := []struct {
		name     string
		f        *ComponentFilter
		expected bool
	}{
		{name: "nil filter matches", f: nil, expected: true},
		{name: "empty filter matches", f: &ComponentFilter{}, expected: true},
		{name: "id match", f: &ComponentFilter{IDs: []string{"node1", "node2"}}, expected: true},
		{name: "id miss", f: &ComponentFilter{IDs: []string{"node2"}}, expected: false},
		{
			name:     "status list is an OR",
			f:        &ComponentFilter{Status: []types.ComponentStatus{types.StatusPending, types.StatusFailed}},
			expected: true,
		},
		{name: "status miss", f: &ComponentFilter{Status: []types.ComponentStatus{types.StatusSuccess}}, expected: false},
		{name: "enabled match", f: &ComponentFilter{Enabled: &enabled}, expected: true},
		{name: "config match", f: &ComponentFilter{Config: "base"}, expected: true},
		{name: "config miss", f: &ComponentFilter{Config: "other"}, expected: false},
		{name: "tag match", f: &ComponentFilter{Tags: map[string]string{"rack": "r1"}}, expected: true},
		{name: "tag miss", f: &ComponentFilter{Tags: map[string]string{"rack": "r2"}}, expected: false},
		{
			name: "criteria are ANDed",
			f: &ComponentFilter{
				Config: "base",
				Tags:   map[string]string{"rack": "r2"},
			},
			expected: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.f.Match(comp))
		})
	}
}

func TestSessionFilterMatch(t *testing.T) {
	now := time.Now()
	started := now.Add(-2 * time.Hour)
	sess := &types.Session{
		Name: "batcher-1234",
		Status: types.SessionStatusInfo{
			Status:    types.SessionComplete,
			Succeeded: types.SucceededTrue,
			StartTime: &started,
		},
		Tags: map[string]string{"owner": "ops"},
	}

	assert.True(t, (&SessionFilter{MinAge: time.Hour}).Match(sess, now))
	assert.False(t, (&SessionFilter{MinAge: 3 * time.Hour}).Match(sess, now))
	assert.True(t, (&SessionFilter{MaxAge: 3 * time.Hour}).Match(sess, now))
	assert.False(t, (&SessionFilter{MaxAge: time.Hour}).Match(sess, now))
	assert.True(t, (&SessionFilter{Status: types.SessionComplete}).Match(sess, now))
	assert.False(t, (&SessionFilter{Status: types.SessionPending}).Match(sess, now))
	assert.True(t, (&SessionFilter{Succeeded: types.SucceededTrue}).Match(sess, now))
	assert.True(t, (&SessionFilter{NameContains: "batcher"}).Match(sess, now))
	assert.False(t, (&SessionFilter{NameContains: "manual"}).Match(sess, now))
	assert.True(t, (&SessionFilter{Tags: map[string]string{"owner": "ops"}}).Match(sess, now))

	// Sessions that never started have age zero.
	unstarted := &types.Session{Name: "s", Status: types.SessionStatusInfo{Status: types.SessionPending}}
	assert.False(t, (&SessionFilter{MinAge: time.Minute}).Match(unstarted, now))
	assert.True(t, (&SessionFilter{MaxAge: time.Minute}).Match(unstarted, now))
}
