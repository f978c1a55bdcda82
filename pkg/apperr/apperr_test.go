package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapMessageAndUnwrap(t *testing.T) {
	root := errors.New("boom")
	err := Wrap("Click", CodeActionFailed, root, nil)

	assert.Equal(t, "Click: boom", err.Error())
	assert.ErrorIs(t, err, root)

	var appErr *Error
	assert.ErrorAs(t, err, &appErr)
	assert.NotNil(t, appErr.Metadata)
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain error", errors.New("x"), CodeInternal},
		{"nil", nil, CodeInternal},
		{"direct", WrapErrorWithReason("op", CodeNotFound, "x"), CodeNotFound},
		{
			"internal wrapping specific",
			Wrap("outer", CodeInternal, InvalidReqError("inner", "url", errors.New("x")), nil),
			CodeInvalidArgument,
		},
		{
			"specific wrapping specific keeps outer",
			Wrap("outer", CodeActionFailed, Wrap("inner", CodeTimeout, errors.New("x"), nil), nil),
			CodeActionFailed,
		},
		{
			"fmt wrapped",
			fmt.Errorf("ctx: %w", Wrap("inner", CodeTimeout, errors.New("x"), nil)),
			CodeTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestHasCode(t *testing.T) {
	err := Wrap("outer", CodeActionFailed, UnsupportedError("Screenshot", "static"), nil)

	assert.True(t, HasCode(err, CodeUnsupported))
	assert.True(t, HasCode(err, CodeActionFailed))
	assert.False(t, HasCode(err, CodeTimeout))
	assert.False(t, HasCode(errors.New("plain"), CodeUnsupported))
}

func TestHTTPStatus(t *testing.T) {
	unknownSession := Wrap("Get", CodeNotFound, errors.New("no such session"), map[string]any{
		MetaStage: StageSelection,
	})

	assert.Equal(t, http.StatusBadRequest, HTTPStatus(InvalidReqError("Run", "url", errors.New("url is required"))))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(unknownSession))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(WrapErrorWithReason("Click", CodeNotFound, "element_not_found")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}
