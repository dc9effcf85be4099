package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleNotFound(t *testing.T) {
	value := 7

	got, err := HandleNotFound(&value, sql.ErrNoRows)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = HandleNotFound(&value, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, *got)

	_, err = HandleNotFound(&value, errors.New("boom"))
	assert.Error(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	pairErr := &pq.Error{Code: "23505", Constraint: activePairConstraint}
	roomErr := &pq.Error{Code: "23505", Constraint: "sessions_room_id_key"}
	fkErr := &pq.Error{Code: "23503", Constraint: activePairConstraint}

	assert.True(t, isUniqueViolation(pairErr, activePairConstraint))
	assert.True(t, isUniqueViolation(fmt.Errorf("wrapped: %w", pairErr), activePairConstraint))
	assert.False(t, isUniqueViolation(roomErr, activePairConstraint))
	assert.True(t, isUniqueViolation(roomErr, ""))
	assert.False(t, isUniqueViolation(fkErr, activePairConstraint))
	assert.False(t, isUniqueViolation(errors.New("plain"), ""))
	assert.False(t, isUniqueViolation(nil, ""))
}
