package events

import "github.com/atomicstack/tmux-popup-list/internal/logging"

type UITracer struct{}

type ActionTracer struct{}

type CommandTracer struct{}

var (
	UI      = UITracer{}
	Action  = ActionTracer{}
	Command = CommandTracer{}
)

func (UITracer) Draw(window string, count, height int, reload bool) {
	logging.Trace("ui.draw", map[string]interface{}{
		"window": window,
		"count":  count,
		"height": height,
		"reload": reload,
	})
}

func (UITracer) Cursor(index int) {
	logging.Trace("ui.cursor", map[string]interface{}{"index": index})
}

func (UITracer) Selection(count int) {
	logging.Trace("ui.selection", map[string]interface{}{"count": count})
}

func (UITracer) Mouse(phase string, line int) {
	logging.Trace("ui.mouse", map[string]interface{}{"phase": phase, "line": line})
}

func (UITracer) WindowGone(window string) {
	logging.Trace("ui.window.gone", map[string]interface{}{"window": window})
}

func (ActionTracer) Run(list, name string, items int) {
	logging.Trace("action.run", map[string]interface{}{"list": list, "name": name, "items": items})
}

func (ActionTracer) Error(err error) {
	if err == nil {
		return
	}
	logging.Trace("action.error", map[string]interface{}{"error": err.Error()})
}

func (ActionTracer) Success(info string) {
	logging.Trace("action.success", map[string]interface{}{"info": info})
}

func (CommandTracer) Run(args []string) {
	logging.Trace("command.run", map[string]interface{}{"args": args})
}

func (CommandTracer) Result(args []string, err error) {
	payload := map[string]interface{}{"args": args}
	if err != nil {
		payload["error"] = err.Error()
	}
	logging.Trace("command.result", payload)
}

func (UITracer) Key(key string) {
	logging.Trace("ui.key", map[string]interface{}{"key": key})
}

func (CommandTracer) Queue(label string) {
	logging.Trace("command.queue", map[string]interface{}{"label": label})
}

func (CommandTracer) Drop(label string) {
	logging.Trace("command.drop", map[string]interface{}{"label": label})
}

func (CommandTracer) Done(label string, err error) {
	payload := map[string]interface{}{"label": label}
	if err != nil {
		payload["error"] = err.Error()
	}
	logging.Trace("command.done", payload)
}
