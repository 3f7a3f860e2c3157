package config

import (
	"fmt"
	"reflect"
	"strings"
)

// FieldChange records one changed configuration field for reload logging.
// Secret fields carry redacted values.
type FieldChange struct {
	Field string
	Old   string
	New   string
}

// ReloadPlan partitions changed fields by whether the daemon can apply them
// without restarting.
type ReloadPlan struct {
	Hot             []FieldChange
	RestartRequired []FieldChange
}

// Empty reports whether no field changed.
func (p ReloadPlan) Empty() bool {
	return len(p.Hot) == 0 && len(p.RestartRequired) == 0
}

// restartFields are structural settings that only take effect at startup.
var restartFields = map[string]struct{}{
	"api.bind":            {},
	"api.auth_token":      {},
	"api.session_secret":  {},
	"paths.data_dir":      {},
	"paths.database_path": {},
	"paths.plugin_dir":    {},
	"paths.log_dir":       {},
	"paths.backup_dir":    {},
	"tools.probe":         {},
	"tools.transcode":     {},
	"tools.mux":           {},
	"tools.propedit":      {},
}

var secretFields = map[string]struct{}{
	"api.auth_token":     {},
	"api.session_secret": {},
}

// Diff compares two normalized configs and classifies every changed field.
// Everything not listed as restart-required is hot-reloadable: log level and
// retention, worker limits, disk guard, transcription settings, scanner
// behavior flags.
func Diff(current, next *Config) ReloadPlan {
	var plan ReloadPlan
	if current == nil || next == nil {
		return plan
	}
	changes := diffStruct("", reflect.ValueOf(*current), reflect.ValueOf(*next))
	for _, change := range changes {
		if _, secret := secretFields[change.Field]; secret {
			change.Old = "<redacted>"
			change.New = "<redacted>"
		}
		if _, restart := restartFields[change.Field]; restart {
			plan.RestartRequired = append(plan.RestartRequired, change)
		} else {
			plan.Hot = append(plan.Hot, change)
		}
	}
	return plan
}

func diffStruct(prefix string, current, next reflect.Value) []FieldChange {
	var changes []FieldChange
	structType := current.Type()
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		name := strings.Split(field.Tag.Get("toml"), ",")[0]
		if name == "" {
			name = strings.ToLower(field.Name)
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		a, b := current.Field(i), next.Field(i)
		if field.Type.Kind() == reflect.Struct {
			changes = append(changes, diffStruct(path, a, b)...)
			continue
		}
		if !reflect.DeepEqual(a.Interface(), b.Interface()) {
			changes = append(changes, FieldChange{
				Field: path,
				Old:   fmt.Sprintf("%v", a.Interface()),
				New:   fmt.Sprintf("%v", b.Interface()),
			})
		}
	}
	return changes
}
