package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New("registry/bind", CodeDuplicateCorrelation, WithMessage("id 7 already bound"))

	require.NotNil(t, err)
	require.Equal(t, CodeDuplicateCorrelation, err.Code)
	require.Contains(t, err.Error(), "op=registry/bind")
	require.Contains(t, err.Error(), "code=duplicate_correlation")
	require.Contains(t, err.Error(), `message="id 7 already bound"`)
}

func TestErrorStringIncludesSortedMetadata(t *testing.T) {
	err := New("dispatch", CodeUnresolvedCorrelation, WithField("order_id", "12"), WithField("callback", "exec_details"))

	str := err.Error()
	idxCallback := strings.Index(str, "callback=")
	idxOrder := strings.Index(str, "order_id=")
	require.True(t, idxCallback >= 0 && idxOrder > idxCallback, "metadata keys must be sorted: %s", str)
}

func TestWithFieldIgnoresBlankKey(t *testing.T) {
	err := New("op", CodeInvalid, WithField("  ", "x"))
	require.Empty(t, err.Metadata)
}

func TestIsMatchesByCode(t *testing.T) {
	err := New("timeseries/append", CodeOutOfOrderTimestamp)
	wrapped := fmt.Errorf("record bar: %w", err)

	require.ErrorIs(t, wrapped, ErrOutOfOrderTimestamp)
	require.NotErrorIs(t, wrapped, ErrDuplicateCorrelation)
}

func TestIsCodeWalksCauses(t *testing.T) {
	inner := New("wsbridge/dial", CodeConnectionFailure)
	outer := New("session/start", CodeUnavailable, WithCause(inner))

	require.True(t, IsCode(outer, CodeUnavailable))
	require.True(t, IsCode(outer, CodeConnectionFailure))
	require.False(t, IsCode(outer, CodeMalformedCallback))
	require.False(t, IsCode(errors.New("plain"), CodeInvalid))
	require.False(t, IsCode(nil, CodeInvalid))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := New("op", CodeUnavailable, WithCause(cause))

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), `cause="boom"`)
}

func TestNilError(t *testing.T) {
	var e *E
	require.Equal(t, "<nil>", e.Error())
	require.False(t, e.Is(ErrMalformedCallback))
}
