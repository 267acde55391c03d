package handler

// loadStatus is the wire form of the CPU load session state, served by the
// status route and the websocket stream.
type loadStatus struct {
	Status                  string       `json:"status"`
	Message                 string       `json:"message"`
	FibIterationsConfigured int          `json:"fib_iterations_configured"`
	SessionActive           bool         `json:"session_active"`
	SessionIterations       int          `json:"session_iterations,omitempty"`
	LastSession             *lastSession `json:"last_session,omitempty"`
}

type lastSession struct {
	Iterations   int     `json:"iterations"`
	ElapsedMs    float64 `json:"elapsed_ms"`
	StoppedEarly bool    `json:"stopped_early"`
}

func (a *API) statusPayload() loadStatus {
	s := a.runner.Status()

	payload := loadStatus{
		FibIterationsConfigured: a.cfg.Fibonacci.DefaultIterations,
		SessionActive:           s.Active,
	}

	if s.Active {
		payload.Status = "active"
		payload.Message = "cpu load is currently active"
		payload.SessionIterations = s.Iterations
	} else {
		payload.Status = "inactive"
		payload.Message = "no cpu load is currently active"
	}

	if s.Last != nil {
		payload.LastSession = &lastSession{
			Iterations:   s.Last.Iterations,
			ElapsedMs:    float64(s.Last.Elapsed.Microseconds()) / 1000.0,
			StoppedEarly: s.Last.StoppedEarly,
		}
	}

	return payload
}
