// Package services contains server-side business logic: account lifecycle
// and sign-in, institutions, and payment side effects.
package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"github.com/dmitrijs2005/learnkeeper/internal/server/billing"
	"github.com/dmitrijs2005/learnkeeper/internal/server/config"
	"github.com/dmitrijs2005/learnkeeper/internal/server/credentials"
	"github.com/dmitrijs2005/learnkeeper/internal/server/docstore"
	"github.com/dmitrijs2005/learnkeeper/internal/server/password"
	"github.com/dmitrijs2005/learnkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/learnkeeper/internal/server/sessions"
	"github.com/dmitrijs2005/learnkeeper/internal/server/txn"
)

// Deps are the collaborators shared by every service.
type Deps struct {
	Backend   docstore.Backend
	Repos     repomanager.RepositoryManager
	Tx        *txn.Coordinator
	Verifier  *credentials.Verifier
	Sessions  *sessions.Manager
	Policy    *password.Checker
	Processor billing.Processor
	Catalog   *config.Holder
	Logger    logging.Logger
}

// read returns repositories bound to the auto-commit store.
func (d *Deps) read() *repomanager.Repositories {
	return d.Repos.Bind(d.Backend.Store())
}

// checkPassword applies the password policy.
func (d *Deps) checkPassword(ctx context.Context, pw string) error {
	st, err := d.Policy.Check(ctx, pw)
	if err != nil {
		return err
	}
	if st != password.StatusOK {
		return password.PolicyError(st)
	}
	return nil
}

// requireStage rejects claims that are not at stage.
func requireStage(c *sessions.Claims, stage sessions.Stage) error {
	if c == nil || c.Stage != stage {
		return common.ErrorUnauthorized
	}
	return nil
}

func isNotFound(err error) bool { return errors.Is(err, common.ErrorNotFound) }
