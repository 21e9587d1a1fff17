package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signupForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,strong_password"`
	Slug     string `validate:"omitempty,slug"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(signupForm{Email: "a@example.com", Password: "abcd1234", Slug: "go-basics-2"}))

	err := ValidateStruct(signupForm{Email: "not-an-email", Password: "short", Slug: "Bad Slug"})
	require.Error(t, err)

	errs := GetValidationErrors(err)
	require.Len(t, errs, 3)
	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	assert.Equal(t, "email", byField["email"].Tag)
	assert.Equal(t, "strong_password", byField["password"].Tag)
	assert.Equal(t, "slug", byField["slug"].Tag)
}

func TestStrongPassword(t *testing.T) {
	cases := map[string]bool{
		"abcd1234":  true,
		"비밀번호1234":  true,
		"abcdefgh":  false,
		"12345678":  false,
		"ab12":      false,
		"Passw0rd!": true,
	}
	for password, valid := range cases {
		err := ValidateStruct(signupForm{Email: "a@example.com", Password: password})
		assert.Equal(t, valid, err == nil, password)
	}
}

func TestGetValidationErrorsIgnoresOtherErrors(t *testing.T) {
	assert.Empty(t, GetValidationErrors(assert.AnError))
}
