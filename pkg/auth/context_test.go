package auth_test

import (
	"context"
	"testing"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity_RoundTrip(t *testing.T) {
	id := auth.Identity{
		SubjectID:      "collector-1",
		OrganizationID: auth.OrgLawEnforcement,
		Role:           auth.RoleCollector,
		DisplayName:    "Officer Reyes",
	}
	ctx := auth.WithIdentity(context.Background(), id)

	got, err := auth.IdentityFrom(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, "collector-1@LawEnforcement/Collector", got.String())
}

func TestIdentity_MissingFailsClosed(t *testing.T) {
	_, err := auth.IdentityFrom(context.Background())
	assert.ErrorIs(t, err, auth.ErrNoIdentity)

	// Partially populated identities are not identities.
	ctx := auth.WithIdentity(context.Background(), auth.Identity{SubjectID: "x"})
	_, err = auth.IdentityFrom(ctx)
	assert.ErrorIs(t, err, auth.ErrNoIdentity)

	// A later, complete identity replaces an earlier one.
	ctx = auth.WithIdentity(ctx, auth.Identity{SubjectID: "x", OrganizationID: auth.OrgJudiciary, Role: auth.RoleJudge})
	got, err := auth.IdentityFrom(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleJudge, got.Role)
}
