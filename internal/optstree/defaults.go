package optstree

import "github.com/hyperifyio/optspipe/internal/opts"

// Reserved top-level keys. Only these map straight to Nodes in a Tree.
const (
	KeyMetas   = "metas"
	KeyOptions = "options"
	// KeyLocalMetas is never stored in a Tree but may not be used as a tool
	// or alias name either.
	KeyLocalMetas = "local_metas"
)

// DefaultEngine names the capability modules whose version key selects the
// active tool leaves.
var DefaultEngine = opts.Tuple{"analysis_spec", "analysis_runner"}

// MetasSchema declares the fields controlling how overriding happens.
func MetasSchema() opts.Schema {
	return opts.Schema{
		{Name: "config", Value: ""},
		{Name: "strict", Value: true},
		{Name: "check_types", Value: true},
		{Name: "add_new_opts", Value: false},
		{Name: "delistify", Value: true},
		{Name: "hush", Value: false},
		{Name: "max_depth", Value: 2},
		{Name: "engine", Value: append(opts.Tuple(nil), DefaultEngine...)},
		{Name: "version_key_pattern", Value: ""},
		{Name: "manifest", Value: ""},
		{Name: "aliases", Value: map[string]any{}},
		{Name: "audit_dir", Value: ""},
	}
}

// OptionsSchema declares the behavioural options every tool sees.
func OptionsSchema() opts.Schema {
	return opts.Schema{
		{Name: "working_folder", Value: ""},
		{Name: "overwrite", Value: false},
		{Name: "output_pattern", Value: "{{.Name}}_{{.Datetime}}"},
		{Name: "datetime_format", Value: "20060102_150405"},
		{Name: "auto_write", Value: false},
		{Name: "auto_read", Value: false},
		{Name: "auto_write_tool", Value: "Write_Shp"},
		{Name: "auto_read_tool", Value: "Read_Shp"},
		{Name: "file_input_key", Value: "file"},
		{Name: "env_passthrough", Value: []string{}},
		{Name: "log_subprocess_output", Value: true},
		{Name: "script_wall_ms", Value: 1000},
		{Name: "max_output_kb", Value: 64},
		{Name: "save_to", Value: ""},
	}
}

// LocalMetasSchema declares the per call site synchronisation policy.
func LocalMetasSchema() opts.Schema {
	return opts.Schema{
		{Name: "sync", Value: true},
		{Name: "read_only", Value: true},
		{Name: "no_state", Value: false},
		{Name: "write_to_shared", Value: false},
		{Name: "nick_name", Value: ""},
	}
}

func DefaultMetas() *opts.Node      { return MetasSchema().Node("Metas") }
func DefaultOptions() *opts.Node    { return OptionsSchema().Node("Options") }
func DefaultLocalMetas() *opts.Node { return LocalMetasSchema().Node("LocalMetas") }

// IsReservedName reports whether name is one of the keys that may never be
// used for a tool or an alias.
func IsReservedName(name string) bool {
	return name == KeyMetas || name == KeyOptions || name == KeyLocalMetas
}
