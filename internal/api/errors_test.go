package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseError_Precedence(t *testing.T) {
	body := []byte(`{"password":["This password is too common."],"email":["user with this email already exists."],"non_field_errors":["nope"]}`)
	e := parseError(http.StatusBadRequest, body)

	assert.Equal(t, KindValidation, e.Kind)
	assert.Equal(t, "user with this email already exists.", e.FieldMessage("email", "username", "password", "password2"))
	assert.Equal(t, "This password is too common.", e.FieldMessage("username", "password"))
	assert.Equal(t, "nope", e.FieldMessage("password2"))
	assert.Equal(t, "nope", e.Message)
}

func TestParseError_NonJSON(t *testing.T) {
	e := parseError(http.StatusInternalServerError, []byte("<html>boom</html>"))
	assert.Equal(t, KindNetwork, e.Kind)
	assert.Equal(t, "Internal Server Error", e.Message)
}

func TestError_IsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("import: %w", NewCapacity("only one repository"))
	assert.True(t, errors.Is(err, ErrCapacity))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, KindCapacity, KindOf(err))
}

func TestMessage_Fallback(t *testing.T) {
	assert.Equal(t, "", Message(nil, "x"))
	assert.Equal(t, "fallback", Message(errors.New("raw"), "fallback"))
	assert.Equal(t, "raw", Message(errors.New("raw"), ""))
	assert.Equal(t, "fallback", Message(&Error{Kind: KindUnknown}, "fallback"))
}
