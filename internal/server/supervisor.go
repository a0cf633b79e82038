package server

import (
	"net"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/YuminosukeSato/hotelres/pkg/log"
)

// NewSupervisor returns a supervisor running the HTTP service and, when
// watcher is not nil, the model watcher. ln may be nil.
func NewSupervisor(s *Server, ln net.Listener, watcher *ModelWatcher) *suture.Supervisor {
	logger := log.GetLoggerWithName("supervisor")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sup := suture.New("hotelres", suture.Spec{
		EventHook: func(ev suture.Event) {
			logger.Warn("Supervisor event", "event", ev.String(), "type", int(ev.Type()))
		},
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          timeout + time.Second,
	})
	sup.Add(NewHTTPService(s, ln))
	if watcher != nil {
		sup.Add(watcher)
	}
	return sup
}
