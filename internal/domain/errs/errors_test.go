package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	down := errors.New("connection refused")

	assert.Equal(t, "RETRY_EXHAUSTED forecast:co2:germany:5y after 4 attempts: connection refused",
		Exhausted("forecast:co2:germany:5y", 4, down).Error())

	v := Validation("forecast", []FieldError{
		{Field: "indicator", Message: "indicator is required"},
		{Field: "region", Message: "region is required"},
	})
	assert.Equal(t, "VALIDATION forecast: indicator is required; region is required", v.Error())
	assert.Equal(t, CodeInvalidParams, v.Code)
}

func TestKindOf_ThroughWrapping(t *testing.T) {
	down := errors.New("down")
	err := fmt.Errorf("refresh: %w", Exhausted("latest", 2, Remote("latest", down)))

	assert.Equal(t, KindExhausted, KindOf(err))
	assert.True(t, IsKind(err, KindExhausted))
	assert.False(t, IsKind(err, KindRemote))
	assert.ErrorIs(t, err, down)
	assert.Equal(t, Kind(""), KindOf(down))
	assert.False(t, IsKind(nil, KindRemote))
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))

	down := errors.New("bad request")
	p := Permanent(Remote("table", down))
	assert.True(t, IsPermanent(p))
	assert.Equal(t, KindRemote, KindOf(p))
	assert.ErrorIs(t, p, down)

	assert.False(t, IsPermanent(Remote("table", down)))
	assert.True(t, IsPermanent(Validation("table", nil)))
}

func TestFailuresOf(t *testing.T) {
	failures := []FieldError{{Field: "columns[1]", Code: "ERR_REQUIRED"}}
	assert.Equal(t, failures, FailuresOf(Validation("table", failures)))
	assert.Nil(t, FailuresOf(errors.New("x")))
}
