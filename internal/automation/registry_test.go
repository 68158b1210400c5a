package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// mockRepository is an in-memory implementation of Repository for testing.
type mockRepository struct {
	mu         sync.Mutex
	project    *Project
	executions []Execution
	saveErr    error
	saves      int
}

func (m *mockRepository) LoadProject(_ context.Context) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.project == nil {
		return &Project{}, nil
	}
	return m.project.DeepCopy(), nil
}

func (m *mockRepository) SaveProject(_ context.Context, p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.project = p.DeepCopy()
	return nil
}

func (m *mockRepository) CreateExecution(_ context.Context, exec *Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = append(m.executions, *exec)
	return nil
}

func (m *mockRepository) ListExecutions(_ context.Context, _ string, _ int) ([]Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Execution(nil), m.executions...), nil
}

func testProject() *Project {
	return &Project{
		Name: "Testanlage",
		Workflows: []Workflow{
			*validWorkflow(),
			{ID: "wf-2", Name: "Ansage", InPort: 2, Actions: []Action{announcementAction("say", "Hallo")}},
		},
		Stations: []Station{
			{ID: "st-1", Name: "Nord", InPort: 10, NumberOfLapsToStop: 1, WorkflowID: "wf-2"},
			{ID: "st-2", Name: "Süd", InPort: 11, NumberOfLapsToStop: 1},
		},
		Journeys: []Journey{{
			ID:       "j-1",
			Name:     "RE 1",
			InPort:   1,
			Stations: []Station{station("a", "A", 1)},
		}},
	}
}

func TestRegistryLoad(t *testing.T) {
	repo := &mockRepository{}
	reg := NewRegistry(repo)
	ctx := context.Background()

	if err := reg.Load(ctx, testProject()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if repo.saves != 1 {
		t.Errorf("repository saves = %d, want 1", repo.saves)
	}

	w, s, j := reg.Counts()
	if w != 2 || s != 2 || j != 1 {
		t.Errorf("Counts = %d %d %d, want 2 2 1", w, s, j)
	}

	wf, err := reg.GetWorkflow("wf-2")
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if wf.Name != "Ansage" {
		t.Errorf("workflow name = %q", wf.Name)
	}
	if _, err := reg.GetWorkflow("nope"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Errorf("GetWorkflow(nope) err = %v", err)
	}
	if _, err := reg.GetStation("nope"); !errors.Is(err, ErrStationNotFound) {
		t.Errorf("GetStation(nope) err = %v", err)
	}
	if _, err := reg.GetJourney("nope"); !errors.Is(err, ErrJourneyNotFound) {
		t.Errorf("GetJourney(nope) err = %v", err)
	}
}

func TestRegistryLoadInvalidKeepsPrevious(t *testing.T) {
	reg := NewRegistry(nil)
	ctx := context.Background()
	if err := reg.Load(ctx, testProject()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	bad := testProject()
	bad.Stations[0].WorkflowID = "missing"
	if err := reg.Load(ctx, bad); !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("Load(bad) err = %v, want ErrWorkflowNotFound", err)
	}
	if w, _, _ := reg.Counts(); w != 2 {
		t.Errorf("active project replaced by invalid one")
	}
}

func TestRegistryLoadSaveError(t *testing.T) {
	saveErr := errors.New("disk full")
	reg := NewRegistry(&mockRepository{saveErr: saveErr})
	if err := reg.Load(context.Background(), testProject()); !errors.Is(err, saveErr) {
		t.Errorf("err = %v, want wrapped save error", err)
	}
	if w, _, _ := reg.Counts(); w != 0 {
		t.Errorf("project activated despite save failure")
	}
}

func TestRegistryReturnsCopies(t *testing.T) {
	reg := NewRegistry(nil)
	if err := reg.Load(context.Background(), testProject()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	wf, _ := reg.GetWorkflow("wf-1")
	wf.Name = "changed"
	wf.Actions[0].Command.Bytes[0] = 0xFF

	again, _ := reg.GetWorkflow("wf-1")
	if again.Name != "Signal Nord" || again.Actions[0].Command.Bytes[0] != 0x0A {
		t.Error("caller mutation leaked into registry")
	}

	p := reg.Project()
	p.Journeys[0].Stations[0].Name = "changed"
	if j, _ := reg.GetJourney("j-1"); j.Stations[0].Name != "A" {
		t.Error("Project() mutation leaked into registry")
	}
}

func TestRegistryListAndResolve(t *testing.T) {
	reg := NewRegistry(nil)
	if err := reg.Load(context.Background(), testProject()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	wfs := reg.ListWorkflows()
	if len(wfs) != 2 || wfs[0].InPort != 2 || wfs[1].InPort != 5 {
		t.Errorf("ListWorkflows not sorted by port: %+v", wfs)
	}
	if st := reg.ListStations(); len(st) != 2 || st[0].Name != "Nord" {
		t.Errorf("ListStations = %+v", st)
	}
	if js := reg.ListJourneys(); len(js) != 1 {
		t.Errorf("ListJourneys = %+v", js)
	}

	nord, _ := reg.GetStation("st-1")
	flow, err := reg.ResolveStationFlow(nord)
	if err != nil || flow == nil || flow.ID != "wf-2" {
		t.Errorf("ResolveStationFlow(Nord) = %+v, %v", flow, err)
	}

	sued, _ := reg.GetStation("st-2")
	flow, err = reg.ResolveStationFlow(sued)
	if err != nil || flow != nil {
		t.Errorf("ResolveStationFlow(Süd) = %+v, %v; want nil, nil", flow, err)
	}

	inline := &Station{Name: "X", Flow: &Workflow{ID: "inline", Name: "inline"}, WorkflowID: "wf-2"}
	if flow, _ := reg.ResolveStationFlow(inline); flow == nil || flow.ID != "inline" {
		t.Errorf("inline flow did not win: %+v", flow)
	}
}

func TestRegistryRefreshCache(t *testing.T) {
	repo := &mockRepository{project: testProject()}
	reg := NewRegistry(repo)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}
	if _, _, j := reg.Counts(); j != 1 {
		t.Errorf("journeys = %d, want 1", j)
	}

	if err := NewRegistry(nil).RefreshCache(context.Background()); !errors.Is(err, ErrNotSupported) {
		t.Errorf("RefreshCache without repo err = %v", err)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry(nil)
	ctx := context.Background()
	if err := reg.Load(ctx, testProject()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = reg.ListWorkflows()
			_ = reg.Project()
		}()
		go func() {
			defer wg.Done()
			_ = reg.Load(ctx, testProject())
		}()
	}
	wg.Wait()
}
