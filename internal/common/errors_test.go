package common

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{NotFoundf("execution %s", "x"), http.StatusNotFound},
		{InvalidInputf("bad"), http.StatusBadRequest},
		{fmt.Errorf("session: %w", ErrMissingReference), http.StatusUnprocessableEntity},
		{Transport("store write", errors.New("conn reset")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), "%v", tt.err)
	}
}

func TestTransportKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Transport("list executions", cause)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "TRANSPORT_FAILURE", ErrorCode(err))
}

func TestValidAgentID(t *testing.T) {
	assert.True(t, ValidAgentID("agent-42"))
	assert.True(t, ValidAgentID("jane.doe@acme"))
	assert.False(t, ValidAgentID(""))
	assert.False(t, ValidAgentID("has space"))
}
