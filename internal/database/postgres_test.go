package database

import (
	"errors"
	"fmt"
	"testing"

	"chat-gateway/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	assert.ErrorIs(t, translate(pgx.ErrNoRows), models.ErrNotFound)
	assert.ErrorIs(t, translate(fmt.Errorf("scan: %w", pgx.ErrNoRows)), models.ErrNotFound)

	dup := &pgconn.PgError{Code: uniqueViolation, ConstraintName: "users_email_key"}
	err := translate(dup)
	assert.ErrorIs(t, err, models.ErrAlreadyExists)
	assert.Contains(t, err.Error(), "users_email_key")

	other := &pgconn.PgError{Code: "23503"}
	assert.Same(t, other, translate(other))

	plain := errors.New("connection reset")
	assert.Equal(t, plain, translate(plain))
}
