package validation

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type listQuery struct {
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset int    `query:"offset" validate:"gte=0"`
	Role   string `query:"role" validate:"omitempty,oneof=user admin"`
}

func TestDecodeBodyReportsEachField(t *testing.T) {
	_, err := DecodeBody[credentials](strings.NewReader(`{"email":"a","password":"short"}`))
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	fields := verr.FieldErrors()
	require.Len(t, fields, 2)
	assert.Equal(t, []string{"Invalid email"}, fields["email"])
	assert.Equal(t, []string{"String must contain at least 8 character(s)"}, fields["password"])
	assert.Empty(t, verr.FormErrors())
}

func TestDecodeBodyValid(t *testing.T) {
	got, err := DecodeBody[credentials](strings.NewReader(`{"email":"u@x.com","password":"longenough","extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, credentials{Email: "u@x.com", Password: "longenough"}, got)
}

func TestDecodeBodyMalformedJSONBecomesZeroValue(t *testing.T) {
	for _, body := range []string{"", "{not json", `["array"]`} {
		got, err := DecodeBody[credentials](strings.NewReader(body))
		require.Error(t, err, "body %q", body)
		assert.Equal(t, credentials{}, got)

		var verr *Error
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, []string{"Required"}, verr.FieldErrors()["email"])
		assert.Equal(t, []string{"Required"}, verr.FieldErrors()["password"])
	}
}

func TestDecodeQueryCoercesNumbers(t *testing.T) {
	got, err := DecodeQuery[listQuery](url.Values{"limit": {"10", "99"}, "offset": {"5"}, "role": {"admin"}})
	require.NoError(t, err)
	assert.Equal(t, listQuery{Limit: 10, Offset: 5, Role: "admin"}, got)

	empty, err := DecodeQuery[listQuery](url.Values{})
	require.NoError(t, err)
	assert.Equal(t, listQuery{}, empty)
}

func TestDecodeQueryRangeAndEnum(t *testing.T) {
	_, err := DecodeQuery[listQuery](url.Values{"limit": {"500"}, "role": {"root"}})

	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"Number must be less than or equal to 100"}, verr.FieldErrors()["limit"])
	assert.Equal(t, []string{"Invalid enum value. Expected one of: user, admin"}, verr.FieldErrors()["role"])
}

func TestDecodeQueryRejectsNonNumeric(t *testing.T) {
	_, err := DecodeQuery[listQuery](url.Values{"limit": {"ten"}})

	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.FieldErrors(), "limit")
}

func TestErrorDetailsShape(t *testing.T) {
	verr := &Error{Fields: map[string][]string{"email": {"Required"}}}
	details := verr.Details()
	assert.Equal(t, map[string][]string{"email": {"Required"}}, details["fieldErrors"])
	assert.Equal(t, []string{}, details["formErrors"])
	assert.Contains(t, verr.Error(), "email: Required")
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithBody(context.Background(), credentials{Email: "u@x.com"})
	ctx = WithQuery(ctx, listQuery{Limit: 3})

	body, ok := BodyFrom[credentials](ctx)
	require.True(t, ok)
	assert.Equal(t, "u@x.com", body.Email)

	query, ok := QueryFrom[listQuery](ctx)
	require.True(t, ok)
	assert.Equal(t, 3, query.Limit)

	_, ok = BodyFrom[listQuery](ctx)
	assert.False(t, ok)
}
