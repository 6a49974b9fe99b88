package supervisor

import (
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// EventHook logs supervisor events with zerolog. Panics and terminations are
// errors; backoff transitions are warnings.
func EventHook(logger zerolog.Logger) suture.EventHook {
	return func(e suture.Event) {
		var ev *zerolog.Event
		switch e.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeServiceTerminate:
			ev = logger.Error()
		case suture.EventTypeBackoff, suture.EventTypeStopTimeout:
			ev = logger.Warn()
		default:
			ev = logger.Info()
		}
		ev.Fields(e.Map()).Msg(e.String())
	}
}
