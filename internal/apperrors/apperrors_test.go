package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsKindSeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("pause failed: %w", QuotaExceeded("no pauses left this year"))

	assert.True(t, IsKind(err, KindQuotaExceeded))
	assert.False(t, IsKind(err, KindConflict))
	assert.False(t, IsKind(errors.New("plain"), KindQuotaExceeded))
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Validation("bad box size")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(Precondition("not paused")))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(QuotaExceeded("cap reached")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(Conflict("duplicate skip")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("no such subscription")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("db down")))
}

func TestUserMessageMasksInternalErrors(t *testing.T) {
	assert.Equal(t, "no such subscription", UserMessage(NotFound("no such subscription")))
	assert.Equal(t, "internal server error", UserMessage(errors.New("connection refused")))
}
