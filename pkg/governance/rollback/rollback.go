// Package rollback implements non-destructive template reversion: locating
// a prior version in history, and republishing its panel state as a new
// version rather than rewinding layoutVersion.
package rollback

import (
	"fmt"
	"time"

	"github.com/chronolab/chronovm/pkg/governance/roles"
	"github.com/chronolab/chronovm/pkg/governance/template"
)

// ReconstructError describes why a target version could not be found.
type ReconstructError struct {
	Reason string
}

func (e *ReconstructError) Error() string { return e.Reason }

// ReconstructTemplateAtVersion finds the history entry whose LayoutVersion
// equals v, failing if no such entry exists.
func ReconstructTemplateAtVersion(history []template.Layout, v int) (template.Layout, error) {
	for _, l := range history {
		if l.LayoutVersion == v {
			return l.Clone(), nil
		}
	}
	return template.Layout{}, &ReconstructError{fmt.Sprintf("no layout at version %d", v)}
}

// Result is the outcome of a rollback attempt.
type Result struct {
	Ok       bool
	Layout   template.Layout
	Reason   string
}

// PerformRollback requires reset_template, requires 1 <= targetVersion <
// current.LayoutVersion, reconstructs the target snapshot from history and
// publishes it as current.LayoutVersion+1 under the caller's identity,
// with PreviousHash set to the caller-supplied newHash in place of the
// hash of current that the template layer records. history itself is
// never modified.
func PerformRollback(current template.Layout, targetVersion int, history []template.Layout, userId string, role roles.Role, ts time.Time, newHash string) Result {
	if d := roles.Can(role, roles.CapRollbackTemplate, nil); !d.Granted {
		return Result{Ok: false, Reason: d.Reason}
	}
	if targetVersion < 1 || targetVersion >= current.LayoutVersion {
		return Result{Ok: false, Reason: fmt.Sprintf("target version %d must be in [1, %d)", targetVersion, current.LayoutVersion)}
	}

	reconstructed, err := ReconstructTemplateAtVersion(history, targetVersion)
	if err != nil {
		return Result{Ok: false, Reason: err.Error()}
	}

	templateResult := template.RollbackTemplate(current, reconstructed, role, userId, ts)
	if !templateResult.Ok {
		return Result{Ok: false, Reason: templateResult.Reason}
	}

	published := templateResult.Layout
	published.PreviousHash = newHash
	return Result{Ok: true, Layout: published}
}

// VerifyRollbackIntegrity extends template.VerifyVersionIntegrity with the
// rule that a version number is never reused across the history.
func VerifyRollbackIntegrity(history []template.Layout) error {
	if err := template.VerifyVersionIntegrity(history); err != nil {
		return err
	}
	seen := make(map[int]bool, len(history))
	for _, l := range history {
		if seen[l.LayoutVersion] {
			return &ReconstructError{fmt.Sprintf("layout version %d is reused in history", l.LayoutVersion)}
		}
		seen[l.LayoutVersion] = true
	}
	return nil
}
