// Package batch groups modification commands into batches and decides, per
// batch, whether they run through bulk copy or as ordinary statements.
package batch

import (
	"context"
	"sync/atomic"

	"github.com/ajitpratap0/bulkflow/pkg/config"
	"github.com/ajitpratap0/bulkflow/pkg/processor"
	"github.com/ajitpratap0/bulkflow/pkg/session"
	"github.com/ajitpratap0/bulkflow/pkg/update"
)

// CommandBatch accumulates commands and executes them together.
type CommandBatch interface {
	// AddCommand adds cmd, or returns false without changing the batch
	// when cmd belongs in another batch
	AddCommand(cmd *update.Command) bool
	Commands() []*update.Command
	Execute(ctx context.Context, s session.Session) error
}

// Settings selects which entity states may use bulk mode.
type Settings struct {
	InsertEnabled bool
	DeleteEnabled bool
	// UpdateEnabled routes modified entities to bulk mode, where execution
	// fails because bulk update does not exist
	UpdateEnabled bool
}

// DefaultSettings enables bulk insert and delete.
func DefaultSettings() Settings {
	return Settings{InsertEnabled: true, DeleteEnabled: true}
}

// SettingsFromConfig converts routing configuration.
func SettingsFromConfig(cfg config.RoutingConfig) Settings {
	return Settings{
		InsertEnabled: cfg.InsertEnabled,
		DeleteEnabled: cfg.DeleteEnabled,
		UpdateEnabled: cfg.UpdateEnabled,
	}
}

// Enabled reports whether commands in state may use bulk mode.
func (s Settings) Enabled(state update.EntityState) bool {
	switch state {
	case update.Added:
		return s.InsertEnabled
	case update.Deleted:
		return s.DeleteEnabled
	case update.Modified:
		return s.UpdateEnabled
	}
	return false
}

// Switch turns bulk routing on and off for one session.
type Switch struct {
	disabled atomic.Bool
}

// NewSwitch creates a switch in the given position.
func NewSwitch(enabled bool) *Switch {
	s := &Switch{}
	s.disabled.Store(!enabled)
	return s
}

func (s *Switch) Enable()  { s.disabled.Store(false) }
func (s *Switch) Disable() { s.disabled.Store(true) }

// Enabled reports the switch position. A nil switch is on.
func (s *Switch) Enabled() bool {
	return s == nil || !s.disabled.Load()
}

// Factory creates routed batches sharing settings, switch and processor
// options.
type Factory struct {
	settings Settings
	sw       *Switch
	opts     processor.Options
}

// NewFactory creates a batch factory.
func NewFactory(settings Settings, sw *Switch, opts processor.Options) *Factory {
	return &Factory{settings: settings, sw: sw, opts: opts}
}

// Create returns a router over a fresh statement batch.
func (f *Factory) Create() CommandBatch {
	return NewRouter(NewStatementBatch(), f.settings, f.sw, f.opts)
}

// Switch returns the factory's switch.
func (f *Factory) Switch() *Switch { return f.sw }
