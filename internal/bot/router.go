package bot

import (
	"log/slog"
	"strings"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/narvelay/daily-tasks-bot/internal/bot/handlers"
)

type route struct {
	name    string
	handler handlers.Handler
}

// Router dispatches commands, reply-keyboard texts and callbacks.
type Router struct {
	mu             sync.RWMutex
	commands       map[string]route
	texts          map[string]route
	callbacks      map[string]route
	defaultHandler handlers.Handler
	middlewares    []handlers.Middleware
	log            *slog.Logger
}

// NewRouter builds a Router with empty registries.
func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		commands:    make(map[string]route),
		texts:       make(map[string]route),
		callbacks:   make(map[string]route),
		middlewares: make([]handlers.Middleware, 0),
		log:         log,
	}
}

// RegisterCommand registers a handler for a bot command such as "/start".
func (r *Router) RegisterCommand(cmd string, h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd] = route{name: strings.TrimPrefix(cmd, "/"), handler: h}
}

// RegisterText routes a plain message text, such as a reply keyboard button, to h.
// name is the route label used in logs and metrics.
func (r *Router) RegisterText(text, name string, h handlers.Handler) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts[text] = route{name: name, handler: h}
}

// RegisterCallback registers a handler for a callback data prefix.
func (r *Router) RegisterCallback(prefix string, h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[prefix] = route{name: strings.TrimRight(prefix, ":_"), handler: h}
}

// Use appends a middleware to the chain. The first registered middleware is the outermost.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// SetDefault sets the fallback handler for unmatched messages.
func (r *Router) SetDefault(h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultHandler = h
}

// Route directs the incoming update to the appropriate handler.
func (r *Router) Route(c telebot.Context) error {
	if c == nil {
		return nil
	}

	if callback := c.Callback(); callback != nil {
		return r.handleCallback(c, callback.Data)
	}

	return r.handleMessage(c)
}

func (r *Router) handleCallback(c telebot.Context, data string) error {
	rt, ok := r.findCallback(data)
	if !ok {
		r.log.Info("no callback handler found", slog.String("data", data))
		return c.Respond()
	}

	return r.execute(rt, c)
}

func (r *Router) handleMessage(c telebot.Context) error {
	text := strings.TrimSpace(c.Text())

	if strings.HasPrefix(text, "/") {
		if rt, ok := r.lookup(r.commands, commandName(text)); ok {
			return r.execute(rt, c)
		}
	} else if rt, ok := r.lookup(r.texts, text); ok {
		return r.execute(rt, c)
	}

	r.mu.RLock()
	fallback := r.defaultHandler
	r.mu.RUnlock()

	if fallback == nil {
		return nil
	}
	return r.execute(route{name: "unknown", handler: fallback}, c)
}

// commandName extracts "/cmd" from "/cmd@BotName args".
func commandName(text string) string {
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd)
}

func (r *Router) execute(rt route, c telebot.Context) error {
	wrapped := r.applyMiddlewares(rt.handler)
	if wrapped == nil {
		return nil
	}
	handlers.SetRoute(c, rt.name)
	return wrapped(c)
}

func (r *Router) lookup(table map[string]route, key string) (route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := table[key]
	return rt, ok
}

// findCallback picks the longest registered prefix that matches data.
func (r *Router) findCallback(data string) (route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best    route
		bestLen = -1
	)
	for prefix, rt := range r.callbacks {
		if strings.HasPrefix(data, prefix) && len(prefix) > bestLen {
			best, bestLen = rt, len(prefix)
		}
	}

	return best, bestLen >= 0
}

// applyMiddlewares wraps the handler with all registered middlewares.
func (r *Router) applyMiddlewares(h handlers.Handler) handlers.Handler {
	if h == nil {
		return nil
	}

	r.mu.RLock()
	middlewares := make([]handlers.Middleware, len(r.middlewares))
	copy(middlewares, r.middlewares)
	r.mu.RUnlock()

	wrapped := h
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}

	return wrapped
}
