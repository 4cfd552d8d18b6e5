package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/scalpel-locator/internal/locator"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 0, exitCode(fmt.Errorf("failed to resolve: %w", context.Canceled)))
	assert.Equal(t, 1, exitCode(locator.ErrNotFound))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}
