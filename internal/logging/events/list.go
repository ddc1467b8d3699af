package events

import "github.com/atomicstack/tmux-popup-list/internal/logging"

type ListTracer struct{}

type WorkerTracer struct{}

type PromptTracer struct{}

type MappingTracer struct{}

var (
	List    = ListTracer{}
	Worker  = WorkerTracer{}
	Prompt  = PromptTracer{}
	Mapping = MappingTracer{}
)

func (ListTracer) Register(name string, replaced bool) {
	logging.Trace("list.register", map[string]interface{}{"name": name, "replaced": replaced})
}

func (ListTracer) Start(name string, args []string) {
	logging.Trace("list.start", map[string]interface{}{"name": name, "args": args})
}

func (ListTracer) State(name, id, state string) {
	logging.Trace("list.state", map[string]interface{}{"name": name, "session": id, "state": state})
}

func (ListTracer) Focus(name string) {
	logging.Trace("list.focus", map[string]interface{}{"name": name})
}

func (WorkerTracer) Load(name string, generation uint64, reload bool) {
	logging.Trace("worker.load", map[string]interface{}{"name": name, "generation": generation, "reload": reload})
}

func (WorkerTracer) Batch(name string, count int, appended bool) {
	logging.Trace("worker.batch", map[string]interface{}{"name": name, "count": count, "append": appended})
}

func (WorkerTracer) Discard(name string, generation uint64) {
	logging.Trace("worker.discard", map[string]interface{}{"name": name, "generation": generation})
}

func (WorkerTracer) Stop(name string) {
	logging.Trace("worker.stop", map[string]interface{}{"name": name})
}

func (WorkerTracer) Error(name string, err error) {
	if err == nil {
		return
	}
	logging.Trace("worker.error", map[string]interface{}{"name": name, "error": err.Error()})
}

func (PromptTracer) Change(input string, cursor int) {
	logging.Trace("prompt.change", map[string]interface{}{"input": input, "cursor": cursor})
}

func (PromptTracer) Mode(mode string) {
	logging.Trace("prompt.mode", map[string]interface{}{"mode": mode})
}

func (MappingTracer) Resolve(mode, key, binding string) {
	logging.Trace("mapping.resolve", map[string]interface{}{"mode": mode, "key": key, "binding": binding})
}

func (MappingTracer) Invalid(key, expr string, err error) {
	logging.Trace("mapping.invalid", map[string]interface{}{"key": key, "expr": expr, "error": err.Error()})
}
