package validation_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/usersvc/users-api/pkg/validation"
)

func TestName_TrimsWhitespace(t *testing.T) {
	name, err := validation.Name(" Ann ")
	assert.NoError(t, err)
	assert.Equal(t, "Ann", name)
}

func TestName_TooShort(t *testing.T) {
	_, err := validation.Name("a")
	assert.Error(t, err)

	var verr *validation.Error
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, "name", verr.Field)
	assert.Equal(t, "Name must be at least 2 characters long", verr.Reason)
}

func TestName_WhitespaceOnly(t *testing.T) {
	_, err := validation.Name("   ")
	assert.Error(t, err)
}

func TestName_RejectsDigits(t *testing.T) {
	_, err := validation.Name("ann3")
	assert.Error(t, err)

	var verr *validation.Error
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, "Name cannot contain numbers", verr.Reason)
}

func TestEmail_Normalizes(t *testing.T) {
	email, err := validation.Email("User@Example.com")
	assert.NoError(t, err)
	assert.Equal(t, "user@example.com", email)

	// Normalization is stable: a second pass is a no-op.
	again, err := validation.Email(email)
	assert.NoError(t, err)
	assert.Equal(t, email, again)
}

func TestEmail_RejectsInvalid(t *testing.T) {
	for _, raw := range []string{"not-an-email", "", "a@", "@example.com"} {
		_, err := validation.Email(raw)
		assert.Error(t, err, "expected %q to be rejected", raw)

		var verr *validation.Error
		assert.True(t, errors.As(err, &verr))
		assert.Equal(t, "email", verr.Field)
	}
}
