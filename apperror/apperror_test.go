package apperror

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "domain", err: Conflict("status changed"), want: KindConflict},
		{name: "wrapped domain", err: fmt.Errorf("accept: %w", InsufficientStock(7, 0)), want: KindInsufficientStock},
		{name: "deadline", err: fmt.Errorf("reserve: %w", context.DeadlineExceeded), want: KindTimeout},
		{name: "unknown", err: errors.New("boom"), want: KindInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestAsKeepsDetails(t *testing.T) {
	err := fmt.Errorf("wrap: %w", InsufficientStock(3, 1))

	e := As(err)
	assert.Equal(t, KindInsufficientStock, e.Kind)
	assert.Equal(t, uint(3), e.ProductID)
	assert.Equal(t, int64(1), e.Available)
}

func TestAsClassifiesPlainErrors(t *testing.T) {
	e := As(context.DeadlineExceeded)
	assert.Equal(t, KindTimeout, e.Kind)
	assert.ErrorIs(t, e, context.DeadlineExceeded)

	e = As(errors.New("db down"))
	assert.Equal(t, KindInternal, e.Kind)
}
