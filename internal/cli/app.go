package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"repolens/internal/api"
	"repolens/internal/config"
	"repolens/internal/credential"
	"repolens/internal/git"
	"repolens/internal/insights"
	"repolens/internal/logging"
	"repolens/internal/model"
	"repolens/internal/picker"
	"repolens/internal/session"
	"repolens/internal/tracker"
)

// Version is stamped at build time.
var Version = "dev"

// app wires the services shared by every command.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	creds   *credential.Store
	client  *api.Client
	session *session.Holder
	tracker *tracker.Tracker
	git     *git.Service

	interactive func() bool
}

// init builds the services from cfg. Commands hold the *app before flags
// are parsed, so it is filled in place.
func (a *app) init(cfg config.Config, debug bool) error {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.File, debug)
	if err != nil {
		return err
	}

	creds, err := credential.New(cfg.Credentials.Path)
	if err != nil {
		return err
	}

	client := api.New(api.Config{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    cfg.API.Timeout,
		AuthScheme: cfg.API.AuthScheme,
		UserAgent:  "repolens/" + Version,
	}, creds, logger.Named("api"))

	a.cfg = cfg
	a.logger = logger
	a.creds = creds
	a.client = client
	a.session = session.New(client, creds, logger.Named("session"))
	a.tracker = tracker.New(client, logger.Named("tracker"))
	a.git = git.NewService(logger.Named("git"))
	if a.interactive == nil {
		a.interactive = isInteractive
	}
	return nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) newPicker() *picker.Picker {
	return picker.New(a.client, a.tracker, a.cfg.Picker.PageSize, a.logger.Named("picker"))
}

func (a *app) newPoller() *tracker.Poller {
	return tracker.NewPoller(a.tracker, a.cfg.Poll.Interval, a.logger.Named("poller"))
}

func (a *app) views(id uuid.UUID) *insights.Views {
	return insights.NewViews(a.client, id, a.logger.Named("insights"))
}

// requireAuth restores the session and fails when nobody is signed in.
func (a *app) requireAuth(ctx context.Context) (*model.User, error) {
	if err := a.session.Load(ctx); err != nil {
		return nil, err
	}
	if err := a.session.RequireAuth(); err != nil {
		return nil, errors.New("not signed in; run `repolens login` first")
	}
	return a.session.Current().User, nil
}

// resolveRepository picks the repository a command acts on. ref may be an
// id, an owner/name, or empty when exactly one repository is tracked.
func (a *app) resolveRepository(ctx context.Context, ref string) (model.TrackedRepository, error) {
	repos, err := a.tracker.ListRepositories(ctx)
	if err != nil {
		return model.TrackedRepository{}, err
	}
	if ref == "" {
		switch len(repos) {
		case 0:
			return model.TrackedRepository{}, errors.New("no repository is tracked; run `repolens repos import` first")
		case 1:
			return repos[0], nil
		default:
			return model.TrackedRepository{}, errors.New("several repositories are tracked; pass an id or owner/name")
		}
	}

	if id, err := uuid.Parse(ref); err == nil {
		if repo, ok := a.tracker.Find(id); ok {
			return repo, nil
		}
		repo, err := a.tracker.Get(ctx, id)
		if err != nil {
			return model.TrackedRepository{}, err
		}
		return *repo, nil
	}
	for _, r := range repos {
		if strings.EqualFold(r.FullName, ref) {
			return r, nil
		}
	}
	return model.TrackedRepository{}, fmt.Errorf("repository %q is not tracked", ref)
}
