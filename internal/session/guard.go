// Package session tracks the signed-in user and decides, for each navigation
// intent, whether it may proceed or where it must be redirected instead.
package session

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"smartclassroom/server/internal/identity"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
)

const (
	PathLogin         = "/login"
	PathDashboard     = "/dashboard"
	PathAdminPrefix   = "/admin"
	PathAdminStudents = "/admin/students"
)

// DefaultReadyTimeout bounds how long Decide waits for the initial session
// restore before deciding with whatever state is present.
const DefaultReadyTimeout = 5 * time.Second

// NavigationIntent describes a route the user is trying to reach. The zero
// value of Public means the route requires authentication; public routes must
// opt out explicitly.
type NavigationIntent struct {
	Path   string
	Public bool
	Role   Role // non-empty restricts the route to that role
}

// Decision is the guard's verdict. When Allow is false, RedirectTo names the
// route to go to instead; ReturnTo, when set, is the originally requested path
// to resume after login.
type Decision struct {
	Allow      bool
	RedirectTo string
	ReturnTo   string
}

// Guard owns the session state for navigation purposes. The session field is
// written only by setSession, which every mutation path funnels through, so
// subscribers observe each change exactly once and in order.
type Guard struct {
	provider     identity.Provider
	adminEmail   string
	readyTimeout time.Duration

	mu      sync.Mutex
	session *identity.Session
	subs    map[int]func(*identity.Session)
	nextSub int

	ready     chan struct{}
	readyOnce sync.Once
	cancelSub func()
}

func NewGuard(provider identity.Provider, adminEmail string) *Guard {
	return &Guard{
		provider:     provider,
		adminEmail:   adminEmail,
		readyTimeout: DefaultReadyTimeout,
		subs:         make(map[int]func(*identity.Session)),
		ready:        make(chan struct{}),
	}
}

// Initialize restores any persisted session and starts tracking provider
// events. It never fails: a provider error during restore leaves the guard
// signed out but operational, and the ready latch is released either way.
func (g *Guard) Initialize(ctx context.Context) {
	defer g.readyOnce.Do(func() { close(g.ready) })

	// Subscribe before the initial read so a sign-in racing the restore is
	// not lost.
	g.cancelSub = g.provider.OnSessionChange(func(s *identity.Session) {
		g.setSession(s)
	})

	session, err := g.provider.CurrentSession(ctx)
	if err != nil {
		log.Printf("session: restore failed, continuing signed out: %v", err)
		return
	}
	g.setSession(session)
}

// Close stops tracking provider events.
func (g *Guard) Close() {
	if g.cancelSub != nil {
		g.cancelSub()
	}
}

func (g *Guard) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	session, err := g.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	g.setSession(session)
	return session, nil
}

func (g *Guard) SignUp(ctx context.Context, email, password, fullName string) (*identity.Session, error) {
	session, err := g.provider.SignUp(ctx, email, password, fullName)
	if err != nil {
		return nil, err
	}
	g.setSession(session)
	return session, nil
}

// SignOut revokes the session. On failure the local state is kept: clearing
// it while the server-side session stays active would desynchronize the two.
func (g *Guard) SignOut(ctx context.Context) error {
	if err := g.provider.SignOut(ctx); err != nil {
		return err
	}
	g.setSession(nil)
	return nil
}

func (g *Guard) Session() *identity.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

// CurrentRole reports the signed-in user's role. Roles are derived from the
// account email on every call and never stored: the configured admin address
// is the administrator, every other account is a teacher.
func (g *Guard) CurrentRole() (Role, bool) {
	g.mu.Lock()
	session := g.session
	g.mu.Unlock()
	if session == nil {
		return "", false
	}
	return roleOf(session.User.Email, g.adminEmail), true
}

// Subscribe registers fn to run on every session change. The returned cancel
// removes the subscription.
func (g *Guard) Subscribe(fn func(*identity.Session)) (cancel func()) {
	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		delete(g.subs, id)
		g.mu.Unlock()
	}
}

// Decide applies the routing rules, in order, to a navigation intent.
func (g *Guard) Decide(ctx context.Context, intent NavigationIntent) Decision {
	// Rule 1: wait for the initial restore, but never indefinitely. On
	// timeout the decision is made with the state at hand rather than
	// blocking navigation forever.
	select {
	case <-g.ready:
	case <-ctx.Done():
	case <-time.After(g.readyTimeout):
		log.Printf("session: not ready after %s, deciding with current state", g.readyTimeout)
	}

	g.mu.Lock()
	session := g.session
	g.mu.Unlock()

	// Rule 2: protected route, nobody signed in.
	if !intent.Public && session == nil {
		return Decision{RedirectTo: PathLogin, ReturnTo: intent.Path}
	}

	if session == nil {
		return Decision{Allow: true}
	}
	role := roleOf(session.User.Email, g.adminEmail)

	// Rule 3: a signed-in user has no business on the login page.
	if intent.Path == PathLogin {
		return Decision{RedirectTo: landing(role)}
	}

	// Rule 4: route demands a role the user does not have.
	if intent.Role != "" && intent.Role != role {
		return Decision{RedirectTo: PathDashboard}
	}

	// Rule 5: the admin subtree is admin-only.
	if isAdminPath(intent.Path) && role != RoleAdmin {
		return Decision{RedirectTo: PathDashboard}
	}

	// Rule 6: admins land on their own dashboard.
	if intent.Path == PathDashboard && role == RoleAdmin {
		return Decision{RedirectTo: PathAdminStudents}
	}

	// Rule 7: nothing objected.
	return Decision{Allow: true}
}

func (g *Guard) setSession(session *identity.Session) {
	g.mu.Lock()
	g.session = session
	callbacks := make([]func(*identity.Session), 0, len(g.subs))
	for _, fn := range g.subs {
		callbacks = append(callbacks, fn)
	}
	g.mu.Unlock()
	for _, fn := range callbacks {
		fn(session)
	}
}

func roleOf(email, adminEmail string) Role {
	if strings.EqualFold(strings.TrimSpace(email), adminEmail) {
		return RoleAdmin
	}
	return RoleTeacher
}

func landing(role Role) string {
	if role == RoleAdmin {
		return PathAdminStudents
	}
	return PathDashboard
}

func isAdminPath(path string) bool {
	return path == PathAdminPrefix || strings.HasPrefix(path, PathAdminPrefix+"/")
}
