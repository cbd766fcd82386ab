package battery

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Byte(t *testing.T) {
	for _, s := range []Status{StatusUnknown, StatusLow, StatusOK} {
		got, err := StatusFromByte(s.Byte())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := StatusFromByte('X')
	assert.Error(t, err)
}

func TestStatus_Text(t *testing.T) {
	assert.Equal(t, "low", StatusLow.String())
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "unknown", StatusUnknown.String())

	var s Status
	require.NoError(t, s.UnmarshalText([]byte("ok")))
	assert.Equal(t, StatusOK, s)
	assert.Error(t, s.UnmarshalText([]byte("flat")))
}

func TestFaultCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{nil, ""},
		{fmt.Errorf("channel vrefint: %w", ErrConversionTimeout), FaultTimeout},
		{fmt.Errorf("vrefint code 0: %w", ErrInvalidReference), FaultReference},
		{ErrOutOfRange, FaultRange},
		{errors.New("other"), FaultOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, FaultCode(tt.err))
	}

	assert.NoError(t, ParseFault(""))
	assert.ErrorIs(t, ParseFault(FaultTimeout), ErrConversionTimeout)
	assert.ErrorIs(t, ParseFault(FaultReference), ErrInvalidReference)
	assert.ErrorIs(t, ParseFault(FaultRange), ErrOutOfRange)
	assert.EqualError(t, ParseFault("brownout"), "device fault: brownout")
}
