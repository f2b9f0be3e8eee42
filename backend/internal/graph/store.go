package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"graph-identity/backend/internal/identity"
	apperrors "graph-identity/backend/pkg/errors"
	"graph-identity/backend/pkg/logger"
)

const entityPrincipal = "principal"

// Store maps principals, roles and external logins onto graph nodes and
// edges. It keeps no in-process state beyond configuration and is safe for
// concurrent use; concurrent writes to one principal are last-writer-wins.
type Store struct {
	exec     Executor
	q        *Builder
	extended bool
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

var _ identity.Store = (*Store)(nil)

// Options configures a Store
type Options struct {
	Labels Labels
	// ExtendedOperations enables Delete, IsInRole, RemoveRole and
	// RemoveExternalLogin. When false they report Unsupported.
	ExtendedOperations bool
	Clock              func() time.Time
	IDGenerator        func() string
}

// NewStore creates a store that runs its statements through exec
func NewStore(exec Executor, opts Options) (*Store, error) {
	if opts.Labels == (Labels{}) {
		opts.Labels = DefaultLabels()
	}
	q, err := NewBuilder(opts.Labels)
	if err != nil {
		return nil, err
	}

	s := &Store{
		exec:     exec,
		q:        q,
		extended: opts.ExtendedOperations,
		logger:   logger.Named("graph"),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	if opts.Clock != nil {
		s.now = opts.Clock
	}
	if opts.IDGenerator != nil {
		s.newID = opts.IDGenerator
	}
	return s, nil
}

// EnsureConstraints creates uniqueness constraints for principal id, email
// and user name. It is optional: the store's own statements keep keys unique
// for sequential callers, the constraints also cover concurrent ones.
func (s *Store) EnsureConstraints(ctx context.Context) error {
	for _, property := range []string{propID, propEmail, propUserName} {
		if _, err := s.run(ctx, s.q.UniqueConstraint(property)); err != nil {
			return err
		}
	}
	s.logger.Info("Principal constraints ensured")
	return nil
}

// Create sanitizes p (lowercased user name and email, new id, timestamps)
// and inserts it unless another principal already holds the email or user
// name. The existence check and the insert are one statement.
func (s *Store) Create(ctx context.Context, p *identity.Principal) error {
	if p == nil {
		return apperrors.NewInvalidArgument("principal", "must not be nil")
	}
	if isBlank(p.UserName) {
		return apperrors.NewInvalidArgument("userName", "must not be blank")
	}
	if isBlank(p.Email) {
		return apperrors.NewInvalidArgument("email", "must not be blank")
	}

	p.Sanitize(s.newID(), s.now())

	rows, err := s.run(ctx, s.q.CreatePrincipal(principalProperties(p)))
	if err != nil {
		return err
	}
	if len(rows) != 1 {
		return apperrors.NewQueryFailed(StmtCreatePrincipal, fmt.Errorf("expected 1 row, got %d", len(rows)))
	}

	if getInt64FromMap(rows[0], "emailTaken", 0) > 0 {
		return apperrors.NewAlreadyExists(propEmail, p.Email)
	}
	if getInt64FromMap(rows[0], "userNameTaken", 0) > 0 {
		return apperrors.NewAlreadyExists(propUserName, p.UserName)
	}

	s.logger.Info("Principal created",
		zap.String("principal_id", p.ID),
		zap.String("user_name", p.UserName),
	)
	return nil
}

// FindByID returns the principal with the given id
func (s *Store) FindByID(ctx context.Context, id string) (*identity.Principal, error) {
	if isBlank(id) {
		return nil, apperrors.NewInvalidArgument("id", "must not be blank")
	}
	return s.findOne(ctx, s.q.MatchPrincipal(propID, id), propID+"="+id)
}

// FindByUserName returns the principal with the given user name, compared
// in lowercase
func (s *Store) FindByUserName(ctx context.Context, userName string) (*identity.Principal, error) {
	if isBlank(userName) {
		return nil, apperrors.NewInvalidArgument("userName", "must not be blank")
	}
	key := identity.NormalizeKey(userName)
	return s.findOne(ctx, s.q.MatchPrincipal(propUserName, key), propUserName+"="+key)
}

// FindByEmail returns the principal with the given email, compared in lowercase
func (s *Store) FindByEmail(ctx context.Context, email string) (*identity.Principal, error) {
	if isBlank(email) {
		return nil, apperrors.NewInvalidArgument("email", "must not be blank")
	}
	key := identity.NormalizeKey(email)
	return s.findOne(ctx, s.q.MatchPrincipal(propEmail, key), propEmail+"="+key)
}

// Update refreshes LastLogin and overwrites every stored property of the
// principal with p's values. The user name and email must already be
// lowercase; use SetEmail to change the address.
func (s *Store) Update(ctx context.Context, p *identity.Principal) error {
	if err := requirePrincipal(p); err != nil {
		return err
	}
	if identity.NormalizeKey(p.UserName) != p.UserName {
		return apperrors.NewInvalidArgument(propUserName, "must be lowercase")
	}
	if identity.NormalizeKey(p.Email) != p.Email {
		return apperrors.NewInvalidArgument(propEmail, "must be lowercase")
	}

	p.LastLogin = s.now().UTC()

	rows, err := s.run(ctx, s.q.ReplacePrincipal(p.ID, principalProperties(p)))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return apperrors.NewNotFound(entityPrincipal, p.ID)
	}

	s.logger.Debug("Principal updated", zap.String("principal_id", p.ID))
	return nil
}

// Delete removes the principal with its memberships and external logins.
// Only available with extended operations.
func (s *Store) Delete(ctx context.Context, p *identity.Principal) error {
	if !s.extended {
		return apperrors.NewUnsupported("Delete")
	}
	if err := requirePrincipal(p); err != nil {
		return err
	}

	rows, err := s.run(ctx, s.q.DeletePrincipal(p.ID))
	if err != nil {
		return err
	}
	if len(rows) == 0 || getInt64FromMap(rows[0], "deleted", 0) == 0 {
		return apperrors.NewNotFound(entityPrincipal, p.ID)
	}

	s.logger.Info("Principal deleted", zap.String("principal_id", p.ID))
	return nil
}

func (s *Store) findOne(ctx context.Context, stmt Statement, key string) (*identity.Principal, error) {
	rows, err := s.run(ctx, stmt)
	if err != nil {
		return nil, err
	}

	switch len(rows) {
	case 0:
		return nil, apperrors.NewNotFound(entityPrincipal, key)
	case 1:
		p, ok := principalFromRow(rows[0])
		if !ok {
			return nil, apperrors.NewQueryFailed(stmt.Name, fmt.Errorf("row has no principal column"))
		}
		return p, nil
	default:
		s.logger.Error("Duplicate principals for unique key",
			zap.String("key", key),
			zap.Int("matches", len(rows)),
		)
		return nil, apperrors.NewAmbiguous(entityPrincipal, key, len(rows))
	}
}

// run executes stmt and normalizes its failure into a query error
func (s *Store) run(ctx context.Context, stmt Statement) ([]Row, error) {
	rows, err := s.exec.Run(ctx, stmt)
	if err != nil {
		s.logger.Error("Statement failed",
			zap.String("statement", stmt.Name),
			zap.Error(err),
		)
		return nil, asQueryError(stmt, err)
	}
	return rows, nil
}

func requirePrincipal(p *identity.Principal) error {
	if p == nil {
		return apperrors.NewInvalidArgument("principal", "must not be nil")
	}
	if isBlank(p.ID) {
		return apperrors.NewInvalidArgument("id", "must not be blank")
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
