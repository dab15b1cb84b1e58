package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
	assert.True(t, IsUniqueViolation(dup))
	assert.True(t, IsUniqueViolation(fmt.Errorf("saving run: %w", dup)))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "42P01"}))
	assert.False(t, IsUniqueViolation(errors.New("23505")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestDescribe(t *testing.T) {
	plain := errors.New("connection reset")
	assert.Equal(t, plain, describe(plain))

	err := describe(&pq.Error{Code: "42601", Message: "syntax error", Hint: "check the statement"})
	assert.Contains(t, err.Error(), "hint: check the statement")
	var pqErr *pq.Error
	assert.True(t, errors.As(err, &pqErr))

	err = describe(&pq.Error{Code: "23503", Message: "fk", Detail: "Key (run_id) is not present"})
	assert.Contains(t, err.Error(), "detail: Key (run_id) is not present")
}
