package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitSchema(t *testing.T) {
	files, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.Contains(t, files, "00001_init.sql")

	raw, err := fs.ReadFile(FS, "00001_init.sql")
	require.NoError(t, err)
	schema := string(raw)

	assert.True(t, strings.HasPrefix(schema, "-- +goose Up"))
	assert.Contains(t, schema, "-- +goose Down")

	t.Run("booked room cannot be deleted", func(t *testing.T) {
		// SET NULL would leave a session with neither a room nor a link and
		// violate class_sessions_location
		var roomLine string
		for _, line := range strings.Split(schema, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "room_id ") && strings.Contains(line, "REFERENCES rooms") {
				roomLine = line
			}
		}
		require.NotEmpty(t, roomLine)
		assert.Contains(t, roomLine, "ON DELETE RESTRICT")
		assert.NotContains(t, roomLine, "SET NULL")
	})

	t.Run("room overlap is excluded in the database", func(t *testing.T) {
		assert.Contains(t, schema, "CREATE EXTENSION IF NOT EXISTS btree_gist")
		assert.Contains(t, schema, "class_sessions_room_no_overlap EXCLUDE USING gist")
	})
}
