package httpserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cvmcloud/deployer/interfaces"
)

// AppScript is the scripted status progression for a single application.
// Each call to the info endpoint consumes the next step; the final step
// repeats once the script is exhausted.
type AppScript struct {
	Steps []interfaces.AppInfo `json:"steps"`

	// RateLimitFirst makes the stub answer 429 to that many requests
	// before serving the script.
	RateLimitFirst int `json:"rate_limit_first,omitempty"`
}

// StubHandler serves scripted per-application status responses. It exists so
// the deploy CLI can be exercised without a live status service.
type StubHandler struct {
	mu      sync.Mutex
	scripts map[common.Address]*appState
}

type appState struct {
	steps         []interfaces.AppInfo
	next          int
	rateLimitLeft int
}

func NewStubHandler() *StubHandler {
	return &StubHandler{scripts: make(map[common.Address]*appState)}
}

// Script installs or replaces the progression for app. A script with no
// steps removes the app; the stub then omits it from responses.
func (h *StubHandler) Script(app common.Address, script AppScript) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(script.Steps) == 0 {
		delete(h.scripts, app)
		return
	}
	h.scripts[app] = &appState{
		steps:         script.Steps,
		rateLimitLeft: script.RateLimitFirst,
	}
}

func (h *StubHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	apps := r.URL.Query().Get("apps")
	if apps == "" {
		http.Error(w, "missing apps parameter", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	infos := make([]interfaces.AppInfo, 0)
	for _, raw := range strings.Split(apps, ",") {
		if !common.IsHexAddress(raw) {
			http.Error(w, "invalid app address", http.StatusBadRequest)
			return
		}
		app := common.HexToAddress(raw)

		state, ok := h.scripts[app]
		if !ok {
			continue
		}
		if state.rateLimitLeft > 0 {
			state.rateLimitLeft--
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		infos = append(infos, state.advance())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(infos)
}

func (s *appState) advance() interfaces.AppInfo {
	info := s.steps[s.next]
	if s.next < len(s.steps)-1 {
		s.next++
	}
	return info
}
