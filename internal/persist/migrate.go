package persist

import (
	"encoding/json"
	"log/slog"
)

// MigrationRule transforms a payload from one schema version to the
// next. Rules are matched by FromVersion, so a chain v1->v2->v3 is
// expressed as two rules.
type MigrationRule struct {
	FromVersion string
	ToVersion   string
	Transform   func(payload json.RawMessage) (json.RawMessage, error)
}

// migrate walks the rule chain until snap reaches target or no rule
// matches the current version. A gap mid-chain (or a failing transform)
// halts the walk; the partially migrated snapshot is stamped with the
// target version and used as-is. Reports whether the snapshot changed
// and whether the chain was exhausted before reaching the target.
func migrate(snap Snapshot, target string, rules []MigrationRule) (Snapshot, bool, bool) {
	if snap.SchemaVersion == target {
		return snap, false, false
	}

	gap := false
	for snap.SchemaVersion != target {
		rule, ok := findRule(rules, snap.SchemaVersion)
		if !ok {
			slog.Warn("migration chain exhausted, stamping target version",
				"at", snap.SchemaVersion, "target", target)
			gap = true
			break
		}

		next, err := rule.Transform(snap.Payload)
		if err != nil {
			slog.Warn("migration transform failed, stamping target version",
				"from", rule.FromVersion, "to", rule.ToVersion, "err", err)
			gap = true
			break
		}

		slog.Info("migrated snapshot", "from", rule.FromVersion, "to", rule.ToVersion)
		snap.Payload = next
		snap.SchemaVersion = rule.ToVersion
	}

	// Version-stamp the result even when the chain fell short, so the
	// re-save does not retry a migration that cannot complete.
	snap.SchemaVersion = target
	snap.Checksum = checksum(snap.Payload)
	return snap, true, gap
}

func findRule(rules []MigrationRule, from string) (MigrationRule, bool) {
	for _, r := range rules {
		if r.FromVersion == from {
			return r, true
		}
	}
	return MigrationRule{}, false
}
