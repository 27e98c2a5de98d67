package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/babillard/core"
)

func TestCursor(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 123456000, time.UTC), ID: "n|1"}

	got, err := DecodeCursor(c.Encode())
	require.NoError(t, err)
	if !got.CreatedAt.Equal(c.CreatedAt) || got.ID != c.ID {
		t.Errorf("failed! DecodeCursor() = %+v; want %+v", got, c)
	}

	got, err = DecodeCursor("")
	assert.NoError(t, err)
	assert.Nil(t, got)

	for _, s := range []string{"%%%", "bm9waXBl", Cursor{ID: ""}.Encode()} {
		_, err = DecodeCursor(s)
		var vErr *core.ValidationError
		if !assert.ErrorAs(t, err, &vErr, "cursor %q", s) {
			continue
		}
		assert.Equal(t, "cursor", vErr.Fields[0].Field)
	}
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    Filter
		wantErr bool
	}{
		{"", FilterAll, false},
		{"all", FilterAll, false},
		{" Unread ", FilterUnread, false},
		{"read", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFilter(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("failed! ParseFilter(%q) error = %v; wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("failed! ParseFilter(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestNotification_Validate(t *testing.T) {
	valid := Notification{Title: "Hi", Kind: KindInfo, CreatedBy: "u1"}
	assert.NoError(t, valid.Validate())

	invalid := Notification{Title: "  ", Kind: "shout"}
	err := invalid.Validate()
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	fields := make([]string, 0, len(vErr.Fields))
	for _, f := range vErr.Fields {
		fields = append(fields, f.Field)
	}
	assert.Equal(t, []string{"title", "kind", "created_by"}, fields)
}

func Test_dedupe(t *testing.T) {
	got := dedupe([]string{"u1", "u2", "", "u1", "u3", "u2"})
	assert.Equal(t, []string{"u1", "u2", "u3"}, got)
}
