// Package guard decides, on the client, whether a protected view may be
// shown for the user snapshot the client holds. A route visit starts
// Unchecked and ends Rendered, Denied or RedirectedToLogin; a denied view is
// never fetched, so nothing is rendered and then hidden.
package guard

import (
	"errors"
	"fmt"
	"sync"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/permissions"
)

const guardName = "navigation"

// ErrLoginRequired is returned for a route visited without a user
var ErrLoginRequired = errors.New("login required")

// RouteState is the state of one navigation
type RouteState int

const (
	// Unchecked is the state before the guard ran
	Unchecked RouteState = iota
	// Rendered means the protected view may be shown
	Rendered
	// Denied means the permission denied view is shown instead
	Denied
	// RedirectedToLogin means there was no user to evaluate
	RedirectedToLogin
)

func (s RouteState) String() string {
	switch s {
	case Rendered:
		return "rendered"
	case Denied:
		return "denied"
	case RedirectedToLogin:
		return "redirected_to_login"
	default:
		return "unchecked"
	}
}

// Terminal reports whether no further transition is possible
func (s RouteState) Terminal() bool {
	return s != Unchecked
}

// Route is a protected view. An empty Permission only requires a user.
type Route struct {
	Name       string
	Permission string
}

// Guard evaluates routes against the user snapshot held by a client. It is
// a convenience for the client; the server re-checks every request.
type Guard struct {
	calc    *permissions.Calculator
	metrics *observability.Metrics
}

// New creates a guard. metrics may be nil.
func New(calc *permissions.Calculator, metrics *observability.Metrics) *Guard {
	return &Guard{calc: calc, metrics: metrics}
}

// Evaluate returns the terminal state for a visit to a view requiring
// required. A nil subject is sent to login.
func (g *Guard) Evaluate(subject permissions.Subject, required string) RouteState {
	switch {
	case subject == nil:
		return RedirectedToLogin
	case required == "":
		return Rendered
	case g.calc.HasPermission(subject, required):
		return Rendered
	default:
		return Denied
	}
}

// Navigate starts a navigation to route and resolves it immediately
func (g *Guard) Navigate(route Route, subject permissions.Subject) *Navigation {
	n := &Navigation{Route: route}
	n.resolve(g, subject)
	return n
}

// Navigation tracks a single visit to a route. It moves from Unchecked to
// exactly one terminal state and stays there.
type Navigation struct {
	Route Route

	mu    sync.Mutex
	state RouteState
}

// NewNavigation creates an unchecked navigation
func NewNavigation(route Route) *Navigation {
	return &Navigation{Route: route}
}

// State returns the current state
func (n *Navigation) State() RouteState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Resolve runs the guard once. Calls after the first return the state
// already reached.
func (n *Navigation) Resolve(g *Guard, subject permissions.Subject) RouteState {
	return n.resolve(g, subject)
}

func (n *Navigation) resolve(g *Guard, subject permissions.Subject) RouteState {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state.Terminal() {
		return n.state
	}
	n.state = g.Evaluate(subject, n.Route.Permission)
	g.metrics.RecordDecision(guardName, n.state.String())
	return n.state
}

// Err maps the state to the error a caller should surface. Rendered and
// Unchecked yield nil.
func (n *Navigation) Err() error {
	switch n.State() {
	case RedirectedToLogin:
		return fmt.Errorf("%s: %w", n.Route.Name, ErrLoginRequired)
	case Denied:
		return fmt.Errorf("%s: %w", n.Route.Name, apperrors.Denied(n.Route.Permission))
	default:
		return nil
	}
}
