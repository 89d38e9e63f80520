package generation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPermanent(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		err       error
		permanent bool
	}{
		{
			name:      "invalid response is permanent",
			err:       ErrInvalidResponse,
			permanent: true,
		},
		{
			name:      "wrapped invalid response is permanent",
			err:       fmt.Errorf("parsing failed: %w", ErrInvalidResponse),
			permanent: true,
		},
		{
			name:      "content blocked is permanent",
			err:       ErrContentBlocked,
			permanent: true,
		},
		{
			name:      "invalid config is permanent",
			err:       ErrInvalidConfig,
			permanent: true,
		},
		{
			name:      "transient failure is not permanent",
			err:       ErrTransientFailure,
			permanent: false,
		},
		{
			name:      "generic failure defaults to transient",
			err:       ErrGenerationFailed,
			permanent: false,
		},
		{
			name:      "unknown error defaults to transient",
			err:       errors.New("connection reset"),
			permanent: false,
		},
		{
			name:      "nil error",
			err:       nil,
			permanent: false,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.permanent, IsPermanent(tc.err))
		})
	}
}
