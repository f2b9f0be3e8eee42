// Package graphtest provides an in-memory graph.Executor for tests. It
// understands every statement the graph package builds, keyed by statement
// name, and applies the same match/merge/patch semantics the Cypher does.
package graphtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"graph-identity/backend/internal/graph"
)

type login struct {
	owner       string
	provider    string
	providerKey string
}

// Graph is a thread-safe in-memory property graph
type Graph struct {
	mu          sync.Mutex
	principals  []map[string]any
	roles       map[string]map[string]struct{}
	logins      []login
	constraints []string
	calls       []graph.Statement
	failures    map[string]error
}

var _ graph.Executor = (*Graph)(nil)

// New returns an empty graph
func New() *Graph {
	return &Graph{
		roles:    make(map[string]map[string]struct{}),
		failures: make(map[string]error),
	}
}

// Seed inserts a principal node as-is, bypassing every uniqueness check
func (g *Graph) Seed(props map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.principals = append(g.principals, copyProps(props))
}

// FailWith makes every statement whose name starts with prefix return err
func (g *Graph) FailWith(prefix string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[prefix] = err
}

// Calls returns the statements run so far, in order
func (g *Graph) Calls() []graph.Statement {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]graph.Statement, len(g.calls))
	copy(out, g.calls)
	return out
}

// CallCount returns how many statements with the given name were run
func (g *Graph) CallCount(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

// PrincipalCount returns the number of principal nodes
func (g *Graph) PrincipalCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.principals)
}

// Principal returns a copy of the stored properties of the node with id
func (g *Graph) Principal(id string) (map[string]any, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.principals {
		if p["id"] == id {
			return copyProps(p), true
		}
	}
	return nil, false
}

// LoginCount returns the number of external login nodes
func (g *Graph) LoginCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.logins)
}

// Constraints returns the names of constraint statements run so far
func (g *Graph) Constraints() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.constraints...)
}

// Run applies stmt to the in-memory graph
func (g *Graph) Run(ctx context.Context, stmt graph.Statement) ([]graph.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, stmt)
	for prefix, err := range g.failures {
		if strings.HasPrefix(stmt.Name, prefix) {
			return nil, err
		}
	}

	switch {
	case stmt.Name == graph.StmtCreatePrincipal:
		return g.create(stmt.Params), nil
	case strings.HasPrefix(stmt.Name, graph.StmtMatchPrincipal):
		property := strings.TrimPrefix(stmt.Name, graph.StmtMatchPrincipal)
		return g.match(property, stmt.Params["value"]), nil
	case stmt.Name == graph.StmtReplacePrincipal:
		return g.replace(stmt.Params), nil
	case stmt.Name == graph.StmtPatchPrincipal:
		return g.patch(stmt.Params), nil
	case stmt.Name == graph.StmtPatchEmail:
		return g.patchEmail(stmt.Params), nil
	case stmt.Name == graph.StmtIncrementFailed:
		return g.increment(stmt.Params), nil
	case stmt.Name == graph.StmtDeletePrincipal:
		return g.delete(stmt.Params), nil
	case stmt.Name == graph.StmtAddRole:
		return g.addRole(stmt.Params), nil
	case stmt.Name == graph.StmtListRoles:
		return g.listRoles(stmt.Params), nil
	case stmt.Name == graph.StmtHasRole:
		return g.hasRole(stmt.Params), nil
	case stmt.Name == graph.StmtRemoveRole:
		return g.removeRole(stmt.Params), nil
	case stmt.Name == graph.StmtAddLogin:
		return g.addLogin(stmt.Params), nil
	case stmt.Name == graph.StmtFindByLogin:
		return g.findByLogin(stmt.Params), nil
	case stmt.Name == graph.StmtListLogins:
		return g.listLogins(stmt.Params), nil
	case stmt.Name == graph.StmtRemoveLogin:
		return g.removeLogin(stmt.Params), nil
	case strings.HasPrefix(stmt.Name, graph.StmtConstraint):
		g.constraints = append(g.constraints, stmt.Name)
		return nil, nil
	}
	return nil, fmt.Errorf("graphtest: unknown statement %q", stmt.Name)
}

func (g *Graph) create(params map[string]any) []graph.Row {
	var emailTaken, userNameTaken int64
	for _, p := range g.principals {
		if p["email"] == params["email"] {
			emailTaken++
		}
		if p["userName"] == params["userName"] {
			userNameTaken++
		}
	}
	if emailTaken == 0 && userNameTaken == 0 {
		props, _ := params["props"].(map[string]any)
		g.principals = append(g.principals, copyProps(props))
	}
	return []graph.Row{{"emailTaken": emailTaken, "userNameTaken": userNameTaken}}
}

func (g *Graph) match(property string, value any) []graph.Row {
	var rows []graph.Row
	for _, p := range g.principals {
		if v, ok := p[property]; ok && v == value {
			rows = append(rows, graph.Row{"principal": copyProps(p)})
		}
	}
	return rows
}

func (g *Graph) replace(params map[string]any) []graph.Row {
	props, _ := params["props"].(map[string]any)
	var rows []graph.Row
	for i, p := range g.principals {
		if p["id"] == params["id"] {
			g.principals[i] = copyProps(props)
			rows = append(rows, graph.Row{"principal": copyProps(g.principals[i])})
		}
	}
	return rows
}

func (g *Graph) patch(params map[string]any) []graph.Row {
	fields, _ := params["patch"].(map[string]any)
	var rows []graph.Row
	for _, p := range g.principals {
		if p["id"] != params["id"] {
			continue
		}
		for k, v := range fields {
			if v == nil {
				delete(p, k)
			} else {
				p[k] = v
			}
		}
		rows = append(rows, graph.Row{"principal": copyProps(p)})
	}
	return rows
}

func (g *Graph) patchEmail(params map[string]any) []graph.Row {
	id, _ := params["id"].(string)
	if !g.exists(id) {
		return nil
	}

	var emailTaken int64
	for _, p := range g.principals {
		if p["id"] != id && p["email"] == params["email"] {
			emailTaken++
		}
	}
	if emailTaken == 0 {
		for _, p := range g.principals {
			if p["id"] == id {
				p["email"] = params["email"]
			}
		}
	}
	return []graph.Row{{"emailTaken": emailTaken}}
}

func (g *Graph) increment(params map[string]any) []graph.Row {
	var rows []graph.Row
	for _, p := range g.principals {
		if p["id"] != params["id"] {
			continue
		}
		count, _ := p["failedLoginCount"].(int64)
		p["failedLoginCount"] = count + 1
		rows = append(rows, graph.Row{"failedLoginCount": count + 1})
	}
	return rows
}

func (g *Graph) delete(params map[string]any) []graph.Row {
	id, _ := params["id"].(string)
	var deleted int64
	kept := g.principals[:0]
	for _, p := range g.principals {
		if p["id"] == id {
			deleted++
			continue
		}
		kept = append(kept, p)
	}
	g.principals = kept

	if deleted > 0 {
		delete(g.roles, id)
		g.logins = filterLogins(g.logins, func(l login) bool { return l.owner != id })
	}
	return []graph.Row{{"deleted": deleted}}
}

func (g *Graph) exists(id any) bool {
	for _, p := range g.principals {
		if p["id"] == id {
			return true
		}
	}
	return false
}

func (g *Graph) addRole(params map[string]any) []graph.Row {
	id, _ := params["id"].(string)
	roleName, _ := params["roleName"].(string)
	if !g.exists(id) {
		return nil
	}
	if g.roles[id] == nil {
		g.roles[id] = make(map[string]struct{})
	}
	g.roles[id][roleName] = struct{}{}
	return []graph.Row{{"id": id}}
}

func (g *Graph) listRoles(params map[string]any) []graph.Row {
	id, _ := params["id"].(string)
	names := make([]string, 0, len(g.roles[id]))
	for name := range g.roles[id] {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]graph.Row, 0, len(names))
	for _, name := range names {
		rows = append(rows, graph.Row{"name": name})
	}
	return rows
}

func (g *Graph) hasRole(params map[string]any) []graph.Row {
	id, _ := params["id"].(string)
	roleName, _ := params["roleName"].(string)
	_, ok := g.roles[id][roleName]
	return []graph.Row{{"inRole": ok}}
}

func (g *Graph) removeRole(params map[string]any) []graph.Row {
	id, _ := params["id"].(string)
	roleName, _ := params["roleName"].(string)
	var removed int64
	if _, ok := g.roles[id][roleName]; ok {
		delete(g.roles[id], roleName)
		removed = 1
	}
	return []graph.Row{{"removed": removed}}
}

func (g *Graph) addLogin(params map[string]any) []graph.Row {
	id, _ := params["id"].(string)
	provider, _ := params["provider"].(string)
	providerKey, _ := params["providerKey"].(string)
	if !g.exists(id) {
		return nil
	}

	var claimedElsewhere int64
	owned := false
	for _, l := range g.logins {
		if l.provider != provider || l.providerKey != providerKey {
			continue
		}
		if l.owner == id {
			owned = true
		} else {
			claimedElsewhere++
		}
	}
	if claimedElsewhere == 0 && !owned {
		g.logins = append(g.logins, login{owner: id, provider: provider, providerKey: providerKey})
	}
	return []graph.Row{{"claimedElsewhere": claimedElsewhere}}
}

func (g *Graph) findByLogin(params map[string]any) []graph.Row {
	provider, _ := params["provider"].(string)
	providerKey, _ := params["providerKey"].(string)

	owners := make(map[string]struct{})
	for _, l := range g.logins {
		if l.provider == provider && l.providerKey == providerKey {
			owners[l.owner] = struct{}{}
		}
	}

	var rows []graph.Row
	for _, p := range g.principals {
		id, _ := p["id"].(string)
		if _, ok := owners[id]; ok {
			rows = append(rows, graph.Row{"principal": copyProps(p)})
		}
	}
	return rows
}

func (g *Graph) listLogins(params map[string]any) []graph.Row {
	id, _ := params["id"].(string)
	var owned []login
	for _, l := range g.logins {
		if l.owner == id {
			owned = append(owned, l)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].provider != owned[j].provider {
			return owned[i].provider < owned[j].provider
		}
		return owned[i].providerKey < owned[j].providerKey
	})

	rows := make([]graph.Row, 0, len(owned))
	for _, l := range owned {
		rows = append(rows, graph.Row{"loginProvider": l.provider, "providerKey": l.providerKey})
	}
	return rows
}

func (g *Graph) removeLogin(params map[string]any) []graph.Row {
	id, _ := params["id"].(string)
	provider, _ := params["provider"].(string)
	providerKey, _ := params["providerKey"].(string)

	before := len(g.logins)
	g.logins = filterLogins(g.logins, func(l login) bool {
		return l.owner != id || l.provider != provider || l.providerKey != providerKey
	})
	return []graph.Row{{"removed": int64(before - len(g.logins))}}
}

func filterLogins(logins []login, keep func(login) bool) []login {
	out := logins[:0]
	for _, l := range logins {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

// copyProps mirrors how the engine stores a property map: nil values are
// not stored.
func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if v != nil {
			out[k] = v
		}
	}
	return out
}
