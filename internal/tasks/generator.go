// Package tasks picks the daily task text shown to users.
package tasks

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
)

// builtin is used when neither the database nor the configuration provide tasks.
var builtin = []string{
	"Сделай 20 приседаний",
	"Выпей два стакана воды",
	"Прочитай одну главу книги",
	"Прогуляйся 20 минут без телефона",
	"Запиши три цели на завтра",
	"Наведи порядок на рабочем столе",
}

// Source loads stored task texts.
type Source interface {
	List(ctx context.Context) ([]string, error)
}

// Generator returns a uniformly random task text. Safe for concurrent use.
type Generator struct {
	mu    sync.Mutex
	rnd   *rand.Rand
	tasks []string
}

// Option configures a Generator.
type Option func(*Generator)

// WithRand injects the random source, mainly for tests.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rnd = r }
}

// New loads tasks from source, falling back to configured and then built-in texts.
// A source error is logged and treated as an empty table.
func New(ctx context.Context, source Source, configured []string, log *slog.Logger, opts ...Option) *Generator {
	if log == nil {
		log = slog.Default()
	}

	g := &Generator{rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
	for _, opt := range opts {
		opt(g)
	}

	var stored []string
	if source != nil {
		var err error
		stored, err = source.List(ctx)
		if err != nil {
			log.Warn("failed to load tasks, using fallback list", slog.Any("error", err))
		}
	}

	switch {
	case len(stored) > 0:
		g.tasks = stored
	case len(configured) > 0:
		g.tasks = append([]string(nil), configured...)
	default:
		g.tasks = append([]string(nil), builtin...)
	}

	log.Info("task generator ready", slog.Int("tasks", len(g.tasks)))
	return g
}

// Next returns one task text.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tasks[g.rnd.IntN(len(g.tasks))]
}

// Len reports how many distinct tasks can be returned.
func (g *Generator) Len() int {
	return len(g.tasks)
}
