package graph

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "graph-identity/backend/pkg/errors"
)

// Statement names. They identify a pattern in logs and errors.
const (
	StmtCreatePrincipal  = "principal.create"
	StmtMatchPrincipal   = "principal.match." // + property name
	StmtReplacePrincipal = "principal.replace"
	StmtPatchPrincipal   = "principal.patch"
	StmtPatchEmail       = "principal.patch_email"
	StmtIncrementFailed  = "principal.increment_failed"
	StmtDeletePrincipal  = "principal.delete"
	StmtAddRole          = "role.add"
	StmtListRoles        = "role.list"
	StmtHasRole          = "role.has"
	StmtRemoveRole       = "role.remove"
	StmtAddLogin         = "login.add"
	StmtFindByLogin      = "login.find"
	StmtListLogins       = "login.list"
	StmtRemoveLogin      = "login.remove"
	StmtConstraint       = "schema.constraint." // + property name
)

// Relationship types
const (
	relInRole        = "IN_ROLE"
	relExternalLogin = "EXTERNAL_LOGIN"
)

// Statement is a parameterized graph query. Cypher only ever contains
// labels and relationship types; every value travels in Params.
type Statement struct {
	Name   string
	Cypher string
	Params map[string]any
	Write  bool
}

// Labels names the node labels used for each entity
type Labels struct {
	Principal     string
	Role          string
	ExternalLogin string
}

// DefaultLabels returns the labels used when none are configured
func DefaultLabels() Labels {
	return Labels{Principal: "User", Role: "Role", ExternalLogin: "ExternalLogin"}
}

var labelPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate rejects labels that are not plain identifiers
func (l Labels) Validate() error {
	for field, label := range map[string]string{
		"principal label":      l.Principal,
		"role label":           l.Role,
		"external login label": l.ExternalLogin,
	} {
		if !labelPattern.MatchString(label) {
			return apperrors.NewInvalidArgument(field, fmt.Sprintf("%q is not a valid label", label))
		}
	}
	return nil
}

// Builder composes statements for a fixed set of labels
type Builder struct {
	labels Labels
}

// NewBuilder validates the labels and returns a statement builder
func NewBuilder(labels Labels) (*Builder, error) {
	if err := labels.Validate(); err != nil {
		return nil, err
	}
	return &Builder{labels: labels}, nil
}

// CreatePrincipal inserts the node only when no principal holds the same
// email or user name, in a single statement. It always returns one row with
// the number of conflicting nodes per key.
func (b *Builder) CreatePrincipal(props map[string]any) Statement {
	cypher := fmt.Sprintf(`
		OPTIONAL MATCH (byEmail:%[1]s {%[2]s: $email})
		WITH count(byEmail) AS emailTaken
		OPTIONAL MATCH (byName:%[1]s {%[3]s: $userName})
		WITH emailTaken, count(byName) AS userNameTaken
		FOREACH (_ IN CASE WHEN emailTaken = 0 AND userNameTaken = 0 THEN [1] ELSE [] END |
			CREATE (:%[1]s $props)
		)
		RETURN emailTaken, userNameTaken
	`, b.labels.Principal, propEmail, propUserName)

	return Statement{
		Name:   StmtCreatePrincipal,
		Cypher: cypher,
		Params: map[string]any{
			"email":    props[propEmail],
			"userName": props[propUserName],
			"props":    props,
		},
		Write: true,
	}
}

// MatchPrincipal finds principals whose property equals value
func (b *Builder) MatchPrincipal(property string, value any) Statement {
	cypher := fmt.Sprintf(`
		MATCH (u:%s {%s: $value})
		RETURN properties(u) AS principal
	`, b.labels.Principal, property)

	return Statement{
		Name:   StmtMatchPrincipal + property,
		Cypher: cypher,
		Params: map[string]any{"value": value},
	}
}

// ReplacePrincipal overwrites the whole property set of the node with id
func (b *Builder) ReplacePrincipal(id string, props map[string]any) Statement {
	cypher := fmt.Sprintf(`
		MATCH (u:%s {%s: $id})
		SET u = $props
		RETURN properties(u) AS principal
	`, b.labels.Principal, propID)

	return Statement{
		Name:   StmtReplacePrincipal,
		Cypher: cypher,
		Params: map[string]any{"id": id, "props": props},
		Write:  true,
	}
}

// PatchPrincipal sets only the given properties. Nil values remove the property.
func (b *Builder) PatchPrincipal(id string, patch map[string]any) Statement {
	cypher := fmt.Sprintf(`
		MATCH (u:%s {%s: $id})
		SET u += $patch
		RETURN properties(u) AS principal
	`, b.labels.Principal, propID)

	return Statement{
		Name:   StmtPatchPrincipal,
		Cypher: cypher,
		Params: map[string]any{"id": id, "patch": patch},
		Write:  true,
	}
}

// PatchEmail sets the email unless another principal already holds it.
// The single row reports how many others hold it; no row comes back when
// the principal does not exist.
func (b *Builder) PatchEmail(id, email string) Statement {
	cypher := fmt.Sprintf(`
		MATCH (u:%[1]s {%[2]s: $id})
		OPTIONAL MATCH (other:%[1]s {%[3]s: $email})
		WHERE other.%[2]s <> u.%[2]s
		WITH u, count(other) AS emailTaken
		FOREACH (_ IN CASE WHEN emailTaken = 0 THEN [1] ELSE [] END |
			SET u.%[3]s = $email
		)
		RETURN emailTaken
	`, b.labels.Principal, propID, propEmail)

	return Statement{
		Name:   StmtPatchEmail,
		Cypher: cypher,
		Params: map[string]any{"id": id, "email": email},
		Write:  true,
	}
}

// IncrementFailedLogins bumps the counter inside the engine and returns it
func (b *Builder) IncrementFailedLogins(id string) Statement {
	cypher := fmt.Sprintf(`
		MATCH (u:%[1]s {%[2]s: $id})
		SET u.%[3]s = coalesce(u.%[3]s, 0) + 1
		RETURN u.%[3]s AS %[3]s
	`, b.labels.Principal, propID, propFailedLoginCount)

	return Statement{
		Name:   StmtIncrementFailed,
		Cypher: cypher,
		Params: map[string]any{"id": id},
		Write:  true,
	}
}

// DeletePrincipal removes the principal, its edges and its external login nodes
func (b *Builder) DeletePrincipal(id string) Statement {
	cypher := fmt.Sprintf(`
		MATCH (u:%[1]s {%[3]s: $id})
		OPTIONAL MATCH (u)-[:%[4]s]->(l:%[2]s)
		WITH u, collect(l) AS logins
		FOREACH (login IN logins | DETACH DELETE login)
		DETACH DELETE u
		RETURN count(*) AS deleted
	`, b.labels.Principal, b.labels.ExternalLogin, propID, relExternalLogin)

	return Statement{
		Name:   StmtDeletePrincipal,
		Cypher: cypher,
		Params: map[string]any{"id": id},
		Write:  true,
	}
}

// AddRole merges the role node and the membership edge. No row comes back
// when the principal does not exist.
func (b *Builder) AddRole(id, roleName string) Statement {
	cypher := fmt.Sprintf(`
		MATCH (u:%[1]s {%[3]s: $id})
		MERGE (r:%[2]s {%[4]s: $roleName})
		MERGE (u)-[:%[5]s]->(r)
		RETURN u.%[3]s AS id
	`, b.labels.Principal, b.labels.Role, propID, propRoleName, relInRole)

	return Statement{
		Name:   StmtAddRole,
		Cypher: cypher,
		Params: map[string]any{"id": id, "roleName": roleName},
		Write:  true,
	}
}

// ListRoles returns the distinct role names of a principal
func (b *Builder) ListRoles(id string) Statement {
	cypher := fmt.Sprintf(`
		MATCH (u:%[1]s {%[3]s: $id})-[:%[5]s]->(r:%[2]s)
		RETURN DISTINCT r.%[4]s AS name
		ORDER BY name
	`, b.labels.Principal, b.labels.Role, propID, propRoleName, relInRole)

	return Statement{
		Name:   StmtListRoles,
		Cypher: cypher,
		Params: map[string]any{"id": id},
	}
}

// HasRole returns a single inRole boolean
func (b *Builder) HasRole(id, roleName string) Statement {
	cypher := fmt.Sprintf(`
		OPTIONAL MATCH (u:%[1]s {%[3]s: $id})-[rel:%[5]s]->(:%[2]s {%[4]s: $roleName})
		RETURN count(rel) > 0 AS inRole
	`, b.labels.Principal, b.labels.Role, propID, propRoleName, relInRole)

	return Statement{
		Name:   StmtHasRole,
		Cypher: cypher,
		Params: map[string]any{"id": id, "roleName": roleName},
	}
}

// RemoveRole deletes the membership edge, leaving the role node in place
func (b *Builder) RemoveRole(id, roleName string) Statement {
	cypher := fmt.Sprintf(`
		OPTIONAL MATCH (u:%[1]s {%[3]s: $id})-[rel:%[5]s]->(:%[2]s {%[4]s: $roleName})
		WITH collect(rel) AS rels
		FOREACH (rel IN rels | DELETE rel)
		RETURN size(rels) AS removed
	`, b.labels.Principal, b.labels.Role, propID, propRoleName, relInRole)

	return Statement{
		Name:   StmtRemoveRole,
		Cypher: cypher,
		Params: map[string]any{"id": id, "roleName": roleName},
		Write:  true,
	}
}

// AddExternalLogin merges the login edge and node unless another principal
// already owns the provider/key pair. No row comes back when the principal
// does not exist.
func (b *Builder) AddExternalLogin(id, provider, providerKey string) Statement {
	cypher := fmt.Sprintf(`
		MATCH (u:%[1]s {%[3]s: $id})
		OPTIONAL MATCH (other:%[1]s)-[:%[6]s]->(:%[2]s {%[4]s: $provider, %[5]s: $providerKey})
		WHERE other.%[3]s <> u.%[3]s
		WITH u, count(other) AS claimedElsewhere
		FOREACH (_ IN CASE WHEN claimedElsewhere = 0 THEN [1] ELSE [] END |
			MERGE (u)-[:%[6]s]->(:%[2]s {%[4]s: $provider, %[5]s: $providerKey})
		)
		RETURN claimedElsewhere
	`, b.labels.Principal, b.labels.ExternalLogin, propID, propLoginProvider, propProviderKey, relExternalLogin)

	return Statement{
		Name:   StmtAddLogin,
		Cypher: cypher,
		Params: map[string]any{"id": id, "provider": provider, "providerKey": providerKey},
		Write:  true,
	}
}

// FindByExternalLogin matches principals linked to the provider/key pair
func (b *Builder) FindByExternalLogin(provider, providerKey string) Statement {
	cypher := fmt.Sprintf(`
		MATCH (u:%[1]s)-[:%[5]s]->(:%[2]s {%[3]s: $provider, %[4]s: $providerKey})
		WITH DISTINCT u
		RETURN properties(u) AS principal
	`, b.labels.Principal, b.labels.ExternalLogin, propLoginProvider, propProviderKey, relExternalLogin)

	return Statement{
		Name:   StmtFindByLogin,
		Cypher: cypher,
		Params: map[string]any{"provider": provider, "providerKey": providerKey},
	}
}

// ListExternalLogins returns the provider/key pairs linked to a principal
func (b *Builder) ListExternalLogins(id string) Statement {
	cypher := fmt.Sprintf(`
		MATCH (u:%[1]s {%[3]s: $id})-[:%[6]s]->(l:%[2]s)
		RETURN l.%[4]s AS %[4]s, l.%[5]s AS %[5]s
		ORDER BY %[4]s, %[5]s
	`, b.labels.Principal, b.labels.ExternalLogin, propID, propLoginProvider, propProviderKey, relExternalLogin)

	return Statement{
		Name:   StmtListLogins,
		Cypher: cypher,
		Params: map[string]any{"id": id},
	}
}

// RemoveExternalLogin deletes the login node owned by the principal
func (b *Builder) RemoveExternalLogin(id, provider, providerKey string) Statement {
	cypher := fmt.Sprintf(`
		OPTIONAL MATCH (u:%[1]s {%[3]s: $id})-[:%[6]s]->(l:%[2]s {%[4]s: $provider, %[5]s: $providerKey})
		WITH collect(l) AS logins
		FOREACH (login IN logins | DETACH DELETE login)
		RETURN size(logins) AS removed
	`, b.labels.Principal, b.labels.ExternalLogin, propID, propLoginProvider, propProviderKey, relExternalLogin)

	return Statement{
		Name:   StmtRemoveLogin,
		Cypher: cypher,
		Params: map[string]any{"id": id, "provider": provider, "providerKey": providerKey},
		Write:  true,
	}
}

// UniqueConstraint creates a uniqueness constraint on a principal property
func (b *Builder) UniqueConstraint(property string) Statement {
	name := fmt.Sprintf("%s_%s_unique", strings.ToLower(b.labels.Principal), strings.ToLower(property))
	cypher := fmt.Sprintf(
		"CREATE CONSTRAINT %s IF NOT EXISTS FOR (u:%s) REQUIRE u.%s IS UNIQUE",
		name, b.labels.Principal, property,
	)

	return Statement{
		Name:   StmtConstraint + property,
		Cypher: cypher,
		Write:  true,
	}
}
