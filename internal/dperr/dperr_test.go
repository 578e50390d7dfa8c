package dperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "graph error sorts node ids",
			err:  Graph(KindCycle, "cycle detected", "b", "a"),
			want: "graph error (cycle) at a, b: cycle detected",
		},
		{
			name: "type error",
			err:  Type(KindMissingArgument, "sum1", "argument %q is required", "data"),
			want: `type error (missing_argument) at sum1: argument "data" is required`,
		},
		{
			name: "privacy error without nodes",
			err:  Privacy(KindInvalidPrivacyUsage, "epsilon must be positive"),
			want: "privacy error (invalid_privacy_usage): epsilon must be positive",
		},
		{
			name: "evaluation error wraps cause",
			err:  Evaluation("div", errors.New("division by zero")),
			want: "evaluation error (runtime) at div: division by zero",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestList(t *testing.T) {
	t.Parallel()

	t.Run("empty list is nil", func(t *testing.T) {
		t.Parallel()
		var l List
		assert.NoError(t, l.ErrOrNil())
	})

	t.Run("errors.As reaches members", func(t *testing.T) {
		t.Parallel()
		l := List{
			Graph(KindDanglingReference, "unknown node", "x"),
			Privacy(KindBudgetExceeded, "over budget", "m1", "m2"),
		}
		err := fmt.Errorf("validation: %w", l.ErrOrNil())

		var pe *PrivacyError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, []string{"m1", "m2"}, pe.NodeIDs)
		assert.True(t, HasKind(err, KindBudgetExceeded))
		assert.True(t, HasKind(err, KindDanglingReference))
		assert.False(t, HasKind(err, KindCycle))
		assert.Contains(t, l.Error(), "2 error(s) occurred:\n- graph error")
	})

	t.Run("evaluation error unwraps", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("boom")
		err := Evaluation("n", cause)
		assert.ErrorIs(t, err, cause)
		assert.True(t, HasKind(err, KindRuntime))
	})
}
