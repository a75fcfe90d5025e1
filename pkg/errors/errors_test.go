package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	cases := map[Code]Metadata{
		CodeValidation:    {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
		CodeUnauthorized:  {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
		CodeForbidden:     {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
		CodeNotFound:      {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
		CodeConflict:      {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected", Retryable: true},
		CodeStateConflict: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true},
		CodeRateLimit:     {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded"},
		CodeInternal:      {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", Retryable: true},
		CodeDependency:    {HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "dependency unavailable", Retryable: true, DetailsAllowed: true},
	}
	for code, want := range cases {
		assert.Equal(t, want, MetadataFor(code), string(code))
	}
	assert.Equal(t, http.StatusInternalServerError, MetadataFor("SOMETHING_UNKNOWN").HTTPStatus)
}

func TestWithDetailsLeavesReceiverUntouched(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	detailed := base.WithDetails(map[string]any{"field": "foo"})

	assert.Nil(t, base.Details())
	assert.Equal(t, map[string]any{"field": "foo"}, detailed.Details())
	assert.Equal(t, "missing foo", detailed.Message())
	assert.Equal(t, CodeValidation, detailed.Code())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")

	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "CONFLICT: ctx: boom", wrapped.Error())
	assert.Equal(t, "NOT_FOUND: gone", New(CodeNotFound, "gone").Error())
}

func TestCodeLookupsWalkWrappedChain(t *testing.T) {
	wrapped := fmt.Errorf("create order: %w", New(CodeValidation, "cart is empty"))

	require.NotNil(t, As(wrapped))
	assert.True(t, IsCode(wrapped, CodeValidation))
	assert.False(t, IsCode(wrapped, CodeConflict))
	assert.Equal(t, CodeInternal, CodeOf(stdErrors.New("plain")))
	assert.Nil(t, As(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(CodeConflict, "cart drained concurrently")))
	assert.True(t, IsRetryable(New(CodeDependency, "timeout")))
	assert.False(t, IsRetryable(New(CodeValidation, "bad")))
	assert.False(t, IsRetryable(nil))
}

func TestDumpReadsPgxDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "40001", Message: "could not serialize access", TableName: "cart_lines"}
	dump := Dump(Wrap(CodeConflict, pgErr, "delete cart lines"))

	assert.Equal(t, CodeConflict, dump.Code)
	assert.Equal(t, "40001", dump.PGCode)
	assert.Equal(t, "cart_lines", dump.PGTable)
	assert.Len(t, dump.Chain, 2)
}

func TestDumpReadsPqDiagnostics(t *testing.T) {
	pqErr := &pq.Error{Code: "23505", Constraint: "users_email_key", Message: "duplicate key"}
	dump := Dump(fmt.Errorf("insert user: %w", pqErr))

	assert.Empty(t, dump.Code)
	assert.Equal(t, "23505", dump.PGCode)
	assert.Equal(t, "users_email_key", dump.PGConstraint)
	assert.Equal(t, ErrorDump{}, Dump(nil))
}
