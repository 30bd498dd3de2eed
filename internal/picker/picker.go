package picker

import (
	"context"
	"strings"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"repolens/internal/api"
	"repolens/internal/model"
)

// DefaultPageSize is the number of candidates requested per page.
const DefaultPageSize = 10

// State is the lifecycle of the picker dialog.
type State int

const (
	StateClosed State = iota
	StateLoading
	StateLoaded
	StateErrored
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateErrored:
		return "errored"
	case StateSubmitting:
		return "submitting"
	default:
		return "closed"
	}
}

// importFields is the order in which import errors are surfaced.
var importFields = []string{"github_repo_url", "non_field_errors", "error"}

// Source lists the user's GitHub repositories.
type Source interface {
	GitHubRepos(ctx context.Context, q api.CandidateQuery) (*model.CandidatePage, error)
}

// Importer tracks a repository and refreshes the tracked list.
type Importer interface {
	ImportRepository(ctx context.Context, url string) (*model.TrackedRepository, error)
	ListRepositories(ctx context.Context) ([]model.TrackedRepository, error)
}

// View is a copy of the picker state for rendering.
type View struct {
	State       State
	Page        int
	TotalCount  int
	HasNext     bool
	HasPrevious bool
	Query       string
	Items       []model.GitHubCandidate // current page filtered by Query
	Selected    *model.GitHubCandidate
	Err         string
}

// Picker is the "import from GitHub" dialog. Only the current page is held;
// filtering never reaches beyond it.
type Picker struct {
	src      Source
	importer Importer
	pageSize int
	logger   *zap.Logger

	mu       sync.Mutex
	gen      uint64
	state    State
	page     model.CandidatePage
	query    string
	selected *model.GitHubCandidate
	errMsg   string
}

// New returns a closed Picker. pageSize <= 0 selects DefaultPageSize.
func New(src Source, importer Importer, pageSize int, logger *zap.Logger) *Picker {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Picker{src: src, importer: importer, pageSize: pageSize, logger: logger}
}

// Open resets the dialog and loads the first page.
func (p *Picker) Open(ctx context.Context) error {
	p.mu.Lock()
	p.state = StateLoading
	p.page = model.CandidatePage{}
	p.query = ""
	p.selected = nil
	p.errMsg = ""
	p.mu.Unlock()

	return p.LoadPage(ctx, 1)
}

// Close hides the dialog. Results of requests still in flight are dropped.
func (p *Picker) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.state = StateClosed
}

// LoadPage replaces the current page with page n. A result that arrives after
// a newer load, or after Close, is discarded.
func (p *Picker) LoadPage(ctx context.Context, n int) error {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return nil
	}
	p.gen++
	gen := p.gen
	p.state = StateLoading
	p.errMsg = ""
	p.mu.Unlock()

	page, err := p.src.GitHubRepos(ctx, api.CandidateQuery{Page: n, PerPage: p.pageSize, Sort: "updated"})

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		p.logger.Debug("dropping stale candidate page", zap.Int("page", n))
		return nil
	}
	if err != nil {
		p.state = StateErrored
		p.errMsg = api.Message(err, "Failed to load your GitHub repositories.")
		return err
	}
	if page.Page == 0 {
		page.Page = n
	}
	p.page = *page
	p.state = StateLoaded
	return nil
}

// NextPage loads the following page when there is one.
func (p *Picker) NextPage(ctx context.Context) error {
	p.mu.Lock()
	ok, n := p.page.HasNext && p.state != StateLoading, p.page.Page+1
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return p.LoadPage(ctx, n)
}

// PrevPage loads the preceding page when there is one.
func (p *Picker) PrevPage(ctx context.Context) error {
	p.mu.Lock()
	ok, n := p.page.HasPrevious && p.state != StateLoading, p.page.Page-1
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return p.LoadPage(ctx, n)
}

// SetQuery changes the filter text. It is kept across page switches.
func (p *Picker) SetQuery(q string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.query = q
}

// Select toggles c as the single selected candidate.
func (p *Picker) Select(c model.GitHubCandidate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selected != nil && SameCandidate(*p.selected, c) {
		p.selected = nil
		return
	}
	p.selected = &c
}

// CanConfirm reports whether exactly one candidate is selected and nothing is
// in flight.
func (p *Picker) CanConfirm() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected != nil && (p.state == StateLoaded || p.state == StateErrored)
}

// Confirm imports the selected candidate. On failure the dialog stays open
// with the error; on success it closes and the tracked list is refreshed.
// A result that arrives after Close or a re-open leaves the dialog alone.
func (p *Picker) Confirm(ctx context.Context) (*model.TrackedRepository, error) {
	p.mu.Lock()
	if p.selected == nil {
		p.mu.Unlock()
		return nil, api.NewValidation("github_repo_url", "Select a repository to import.")
	}
	target := *p.selected
	p.gen++
	gen := p.gen
	p.state = StateSubmitting
	p.errMsg = ""
	p.mu.Unlock()

	repo, err := p.importer.ImportRepository(ctx, target.URL)

	p.mu.Lock()
	current := gen == p.gen
	if current {
		if err != nil {
			p.state = StateErrored
			p.errMsg = api.Message(err, api.GenericMessage, importFields...)
		} else {
			p.gen++
			p.state = StateClosed
		}
	}
	p.mu.Unlock()

	if err != nil {
		if !current {
			p.logger.Debug("dropping import failure of a closed dialog", zap.Error(err))
		}
		return nil, err
	}
	p.logger.Info("imported repository", zap.String("repository", target.FullName))

	if _, err := p.importer.ListRepositories(ctx); err != nil {
		p.logger.Warn("failed to refresh repositories after import", zap.Error(err))
	}
	return repo, nil
}

// Visible returns the current page filtered by the query.
func (p *Picker) Visible() []model.GitHubCandidate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible()
}

func (p *Picker) visible() []model.GitHubCandidate {
	q := strings.ToLower(strings.TrimSpace(p.query))
	if q == "" {
		return append([]model.GitHubCandidate(nil), p.page.Items...)
	}
	return lo.Filter(p.page.Items, func(c model.GitHubCandidate, _ int) bool {
		return strings.Contains(strings.ToLower(c.Name), q) ||
			strings.Contains(strings.ToLower(c.FullName), q) ||
			strings.Contains(strings.ToLower(c.Description), q)
	})
}

// Page returns the loaded page, unfiltered.
func (p *Picker) Page() model.CandidatePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	pg := p.page
	pg.Items = append([]model.GitHubCandidate(nil), p.page.Items...)
	return pg
}

// State returns a snapshot for rendering.
func (p *Picker) State() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := View{
		State:       p.state,
		Page:        p.page.Page,
		TotalCount:  p.page.TotalCount,
		HasNext:     p.page.HasNext,
		HasPrevious: p.page.HasPrevious,
		Query:       p.query,
		Items:       p.visible(),
		Err:         p.errMsg,
	}
	if p.selected != nil {
		sel := *p.selected
		v.Selected = &sel
	}
	return v
}

// Open reports whether the dialog is showing.
func (v View) Open() bool { return v.State != StateClosed }

// SameCandidate reports whether a and b are the same GitHub repository.
func SameCandidate(a, b model.GitHubCandidate) bool {
	if a.ExternalID != 0 || b.ExternalID != 0 {
		return a.ExternalID == b.ExternalID
	}
	return a.FullName == b.FullName
}
