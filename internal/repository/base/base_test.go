package base

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	wrapped := func(code string) error {
		return fmt.Errorf("insert session: %w", &pgconn.PgError{Code: code})
	}

	assert.True(t, IsExclusionViolation(wrapped("23P01")))
	assert.False(t, IsExclusionViolation(wrapped("23505")))
	assert.True(t, IsUniqueViolation(wrapped("23505")))
	assert.False(t, IsUniqueViolation(fmt.Errorf("plain")))

	assert.True(t, IsNotFound(fmt.Errorf("get: %w", pgx.ErrNoRows)))
	assert.False(t, IsNotFound(nil))
}
