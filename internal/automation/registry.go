package automation

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by this package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry holds the active project with caching and thread safety.
// It optionally wraps a Repository for persistence.
//
// The cache is populated by Load (from a definition file) or RefreshCache
// (from the repository). Both validate and replace the whole project
// atomically; readers never see a half-loaded project.
//
// All public methods are thread-safe and return deep copies.
type Registry struct {
	repo    Repository // nil when running without a database
	project *Project
	mu      sync.RWMutex // Protects project
	logger  Logger
}

// NewRegistry creates an empty registry. repo may be nil.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:    repo,
		project: &Project{},
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Load fills defaults and IDs, validates p and makes it the active project.
// With a repository configured the project is persisted first.
//
// Parameters:
//   - ctx: Context for persistence
//   - p: Project definition; IDs and defaults are written back into it
//
// Returns:
//   - error: Validation error (ErrInvalid*, ErrWorkflowNotFound, ...) or
//     persistence failure. The active project is unchanged on error.
func (r *Registry) Load(ctx context.Context, p *Project) error {
	AssignIDs(p)
	if err := ValidateProject(p); err != nil {
		return err
	}

	if r.repo != nil {
		if err := r.repo.SaveProject(ctx, p); err != nil {
			return fmt.Errorf("saving project: %w", err)
		}
	}

	r.replace(p)
	r.logger.Info("project loaded",
		"name", p.Name,
		"workflows", len(p.Workflows),
		"stations", len(p.Stations),
		"journeys", len(p.Journeys),
	)
	return nil
}

// RefreshCache reloads the project from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	if r.repo == nil {
		return fmt.Errorf("%w: registry has no repository", ErrNotSupported)
	}

	p, err := r.repo.LoadProject(ctx)
	if err != nil {
		return fmt.Errorf("loading project: %w", err)
	}
	AssignIDs(p)
	if err := ValidateProject(p); err != nil {
		return fmt.Errorf("stored project: %w", err)
	}

	r.replace(p)
	r.logger.Info("project cache refreshed",
		"workflows", len(p.Workflows),
		"stations", len(p.Stations),
		"journeys", len(p.Journeys),
	)
	return nil
}

func (r *Registry) replace(p *Project) {
	cpy := p.DeepCopy()
	r.mu.Lock()
	r.project = cpy
	r.mu.Unlock()
}

// Project returns a deep copy of the active project.
func (r *Registry) Project() *Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.project.DeepCopy()
}

// GetWorkflow retrieves a workflow by ID.
func (r *Registry) GetWorkflow(id string) (*Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.project.Workflows {
		if r.project.Workflows[i].ID == id {
			return r.project.Workflows[i].DeepCopy(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
}

// ListWorkflows returns all workflows sorted by port then name.
func (r *Registry) ListWorkflows() []Workflow {
	r.mu.RLock()
	out := make([]Workflow, 0, len(r.project.Workflows))
	for i := range r.project.Workflows {
		out = append(out, *r.project.Workflows[i].DeepCopy())
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].InPort != out[j].InPort {
			return out[i].InPort < out[j].InPort
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// GetStation retrieves a project-level station by ID.
func (r *Registry) GetStation(id string) (*Station, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.project.Stations {
		if r.project.Stations[i].ID == id {
			return r.project.Stations[i].DeepCopy(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrStationNotFound, id)
}

// ListStations returns all project-level stations in definition order.
func (r *Registry) ListStations() []Station {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Station, 0, len(r.project.Stations))
	for i := range r.project.Stations {
		out = append(out, *r.project.Stations[i].DeepCopy())
	}
	return out
}

// GetJourney retrieves a journey by ID.
func (r *Registry) GetJourney(id string) (*Journey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.project.Journeys {
		if r.project.Journeys[i].ID == id {
			return r.project.Journeys[i].DeepCopy(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrJourneyNotFound, id)
}

// ListJourneys returns all journeys in definition order.
func (r *Registry) ListJourneys() []Journey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Journey, 0, len(r.project.Journeys))
	for i := range r.project.Journeys {
		out = append(out, *r.project.Journeys[i].DeepCopy())
	}
	return out
}

// ResolveStationFlow returns the flow a station runs: its inline Flow or
// the workflow its WorkflowID references. A station without either yields
// nil and no error.
func (r *Registry) ResolveStationFlow(s *Station) (*Workflow, error) {
	if s.Flow != nil {
		return s.Flow.DeepCopy(), nil
	}
	if s.WorkflowID == "" {
		return nil, nil //nolint:nilnil // station without a flow
	}
	return r.GetWorkflow(s.WorkflowID)
}

// Counts returns the number of workflows, stations and journeys.
func (r *Registry) Counts() (workflows, stations, journeys int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.project.Workflows), len(r.project.Stations), len(r.project.Journeys)
}
