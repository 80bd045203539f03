package hierarchy

import (
	"fmt"
	"time"

	"github.com/meridian-certs/meridian/internal/shared"
)

// Role is one of the fixed permission tiers.
type Role string

const (
	// RoleRoot is held only by the bootstrapping identity and is never
	// granted at runtime.
	RoleRoot Role = "ROOT"
	// RoleSuperAdmin administers ADMIN and may directly grant the
	// operational roles; it is itself administered by ROOT only.
	RoleSuperAdmin Role = "SUPER_ADMIN"
	// RoleAdmin administers the operational roles and routes privileged
	// issuance through the proposal engine.
	RoleAdmin Role = "ADMIN"
	// RoleIssuer may mint certificates directly.
	RoleIssuer Role = "ISSUER"
	// RoleRevoker is currently inert: grantable through the normal
	// delegation path, but certificate revocation stays with SUPER_ADMIN.
	RoleRevoker Role = "REVOKER"
	// RoleVerifier marks accounts trusted to run verification tooling.
	RoleVerifier Role = "VERIFIER"
)

// administeredBy is the static delegation table: which role ordinarily
// grants and revokes which other role. ROOT is absent on purpose; it is
// never granted by the registry.
var administeredBy = map[Role]Role{
	RoleSuperAdmin: RoleRoot,
	RoleAdmin:      RoleSuperAdmin,
	RoleIssuer:     RoleAdmin,
	RoleRevoker:    RoleAdmin,
	RoleVerifier:   RoleAdmin,
}

// superAdminOverride lists the roles SUPER_ADMIN may grant and revoke
// directly, bypassing the delegation table. SUPER_ADMIN and ROOT are
// deliberately excluded.
var superAdminOverride = map[Role]bool{
	RoleAdmin:    true,
	RoleIssuer:   true,
	RoleRevoker:  true,
	RoleVerifier: true,
}

// ParseRole validates a raw role name.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleRoot, RoleSuperAdmin, RoleAdmin, RoleIssuer, RoleRevoker, RoleVerifier:
		return Role(raw), nil
	}
	return "", fmt.Errorf("%w: unknown role %q", shared.ErrValidation, raw)
}

// Protected reports whether the role is shielded from every runtime
// grant path, including emergency revocation.
func (r Role) Protected() bool {
	return r == RoleRoot || r == RoleSuperAdmin
}

// Membership records one account/role pair.
type Membership struct {
	Account   string
	Role      Role
	GrantedAt time.Time
}

// Grant names an account/role pair for batch operations.
type Grant struct {
	Account string
	Role    Role
}

func hasRole(roles []Role, want Role) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}

// administers reports whether an account holding callerRoles may grant
// or revoke role through the ordinary delegation path.
func administers(callerRoles []Role, role Role) bool {
	admin, ok := administeredBy[role]
	if !ok {
		return false
	}
	if hasRole(callerRoles, admin) {
		return true
	}
	return superAdminOverride[role] && hasRole(callerRoles, RoleSuperAdmin)
}
