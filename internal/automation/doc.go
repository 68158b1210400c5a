// Package automation turns feedback events into layout actions.
//
// A project defines three kinds of triggers, each bound to a feedback port:
//
//   - Workflow: an ordered action list run when its port fires
//   - Station: runs its flow (inline or a referenced workflow) on its port
//   - Journey: counts laps on its port and walks through its stations,
//     running each station's flow once enough laps have passed
//
// Architecture:
//
//	  z21.Client ── OnFeedback ──┬──▶ WorkflowManager ─┐
//	                             ├──▶ StationManager  ─┼──▶ Executor ──▶ Capabilities
//	                             └──▶ JourneyManager  ─┘     (spans,     (sender, player,
//	                                     │                    metrics)     speech)
//	                                     ▼
//	                               SessionStore / ExecutionLog (SQLite)
//
// The workflow and station managers gate executions through a Dispatcher:
// a per-trigger debounce timer plus an in-flight lock, so a trigger never
// runs twice at once while different triggers run concurrently. The journey
// manager processes feedback on a single worker in arrival order.
//
// # Key Types
//
//   - Workflow, Action, Station, Journey, Project: definitions
//   - Executor: runs action lists sequentially or in parallel
//   - Registry: thread-safe project cache wrapping Repository
//   - SQLiteRepository: definitions, execution log, journey sessions, trip log
//
// # Usage
//
//	project, err := automation.LoadProjectFile("project.yaml")
//	registry := automation.NewRegistry(automation.NewSQLiteRepository(db.DB))
//	if err := registry.Load(ctx, project); err != nil {
//	    return err
//	}
//
//	exec := automation.NewExecutor(log)
//	caps := automation.Capabilities{Sender: client}
//	wm, err := automation.NewWorkflowManager(client, registry.Project().Workflows, exec, caps, opts)
//	defer wm.Dispose()
package automation
