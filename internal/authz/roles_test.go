package authz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValid(t *testing.T) {
	require.True(t, Valid(RoleModerator))
	require.True(t, Valid(RoleAdmin))
	require.False(t, Valid("viewer"))
	require.False(t, Valid(""))
}
