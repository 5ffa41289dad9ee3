package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidimapper/pkg/domain"
)

func TestValidateKnownMethods(t *testing.T) {
	assert.True(t, KnownMethod("browsingContext.navigate"))
	assert.True(t, KnownMethod("network.provideResponse"))
	assert.False(t, KnownMethod("browsingContext.frobnicate"))
}

func TestValidateUnknownCommand(t *testing.T) {
	err := ValidateParams("no.such", []byte(`{}`))
	require.NotNil(t, err)
	assert.Equal(t, domain.ErrUnknownCommand, err.Code)
}

func TestValidateRequiredFields(t *testing.T) {
	err := ValidateParams("browsingContext.navigate", []byte(`{"url":"https://a/"}`))
	require.NotNil(t, err)
	assert.Equal(t, domain.ErrInvalidArgument, err.Code)
	assert.Contains(t, err.Message, "context")

	assert.Nil(t, ValidateParams("browsingContext.navigate",
		[]byte(`{"context":"c","url":"https://a/","wait":"complete"}`)))
}

func TestValidateEnum(t *testing.T) {
	err := ValidateParams("browsingContext.navigate",
		[]byte(`{"context":"c","url":"https://a/","wait":"soon"}`))
	require.NotNil(t, err)
	assert.Equal(t, domain.ErrInvalidArgument, err.Code)
}

func TestValidateTypes(t *testing.T) {
	err := ValidateParams("session.subscribe", []byte(`{"events":"browsingContext.load"}`))
	require.NotNil(t, err)

	err = ValidateParams("session.subscribe", []byte(`{"events":[]}`))
	require.NotNil(t, err)

	assert.Nil(t, ValidateParams("session.subscribe", []byte(`{"events":["browsingContext.load"]}`)))
}

func TestValidateStatusCodeNonNegative(t *testing.T) {
	err := ValidateParams("network.provideResponse", []byte(`{"request":"r","statusCode":-1}`))
	require.NotNil(t, err)
	assert.Equal(t, domain.ErrInvalidArgument, err.Code)
	assert.Contains(t, err.Message, `Number must be greater than or equal to 0 in "statusCode"`)

	assert.Nil(t, ValidateParams("network.provideResponse", []byte(`{"request":"r","statusCode":200}`)))
}
