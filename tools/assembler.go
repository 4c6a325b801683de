package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/akolk/loki-nexus2/logging"
	"github.com/akolk/loki-nexus2/mcp"
	"github.com/akolk/loki-nexus2/metrics"
	"github.com/akolk/loki-nexus2/skills"
)

var ErrAssembly = errors.New("failed to assemble tools")

// DialFunc opens a bridge session. mcp.Dial is the default.
type DialFunc func(ctx context.Context, ep mcp.Endpoint, log *logging.Logger) (mcp.Session, error)

// RunDependencies are the per-run inputs that shape the tool set.
type RunDependencies struct {
	CallerID string
	// DataScope names the caller's data directory for __DATA_DIR__.
	// Defaults to CallerID.
	DataScope    string
	Endpoint     *mcp.Endpoint
	SkillArchive []byte
}

func (d RunDependencies) dataScope() string {
	if d.DataScope != "" {
		return d.DataScope
	}
	return d.CallerID
}

// Assembly owns the resources acquired for one run.
type Assembly struct {
	Tools *ToolSet

	session mcp.Session
	skills  *skills.Library

	closeOnce sync.Once
	closeErr  error
}

// Close ends the bridge session and removes the skill directory. Safe to
// call more than once.
func (a *Assembly) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.session != nil {
			errs = append(errs, a.session.Close())
		}
		if a.skills != nil {
			errs = append(errs, a.skills.Close())
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

// SkillDir is the materialized skill directory, or "" when none was loaded.
func (a *Assembly) SkillDir() string {
	if a.skills == nil {
		return ""
	}
	return a.skills.Root()
}

type Assembler struct {
	engine  Querier
	files   FileAccess
	dial    DialFunc
	log     *logging.Logger
	metrics *metrics.Metrics
}

type Option func(*Assembler)

func WithLogger(log *logging.Logger) Option {
	return func(a *Assembler) {
		if log != nil {
			a.log = log.Named("tools")
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Assembler) { a.metrics = m }
}

func WithDialer(d DialFunc) Option {
	return func(a *Assembler) {
		if d != nil {
			a.dial = d
		}
	}
}

func NewAssembler(engine Querier, files FileAccess, opts ...Option) *Assembler {
	a := &Assembler{
		engine: engine,
		files:  files,
		dial:   mcp.Dial,
		log:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble builds the tool set for one run. A broken skill archive is logged
// and skipped; a bridge that cannot be reached fails the assembly.
func (a *Assembler) Assemble(ctx context.Context, deps RunDependencies) (*Assembly, error) {
	log := a.log.WithCaller(deps.CallerID)
	set := newToolSet(a.metrics)
	set.add(dataQueryTool(a.engine, deps.dataScope()))
	set.add(readFileTool(a.files))
	set.add(writeFileTool(a.files))

	asm := &Assembly{Tools: set}

	if len(deps.SkillArchive) > 0 {
		lib, err := skills.Materialize(deps.SkillArchive, log)
		switch {
		case err != nil:
			log.Warn("skill archive ignored", "error", err)
		default:
			asm.skills = lib
			for _, t := range skillTools(lib) {
				set.add(t)
			}
		}
	}

	if deps.Endpoint != nil {
		session, err := a.dial(ctx, *deps.Endpoint, log)
		if err != nil {
			asm.Close()
			return nil, fmt.Errorf("%w: bridge %s: %v", ErrAssembly, deps.Endpoint.Address, err)
		}
		if session != nil {
			asm.session = session
			added, err := addRemoteTools(ctx, set, session)
			if err != nil {
				asm.Close()
				return nil, fmt.Errorf("%w: failed to list bridge tools: %v", ErrAssembly, err)
			}
			log.Info("bridge tools registered", "address", deps.Endpoint.Address, "count", len(added))
		}
	}

	log.Debug("tools assembled", "tools", set.Names())
	return asm, nil
}
