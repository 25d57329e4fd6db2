package pipeline

import (
	"fmt"

	"github.com/hyperifyio/optspipe/internal/opts"
	"github.com/hyperifyio/optspipe/internal/tools"
	"github.com/rs/zerolog/log"
)

// InsertImplicitTool splices toInsert next to the first tool matching
// anchor, before it or after it. Tools equal to toInsert are never anchors.
// Nothing is inserted when alreadyPresent reports that an equivalent tool
// runs elsewhere, or when toInsert already runs on the chosen side of the
// anchor. In those cases the input slice itself is returned.
func InsertImplicitTool(pipeline []tools.Tool, toInsert tools.Tool, anchor func(tools.Tool) bool, before bool, alreadyPresent func([]tools.Tool) bool) []tools.Tool {
	if toInsert == nil || anchor == nil {
		return pipeline
	}
	if alreadyPresent != nil && alreadyPresent(pipeline) {
		return pipeline
	}
	for i, t := range pipeline {
		if sameTool(t, toInsert) || !anchor(t) {
			continue
		}
		side := pipeline[i+1:]
		if before {
			side = pipeline[:i]
		}
		if containsTool(side, toInsert) {
			return pipeline
		}
		at := i + 1
		if before {
			at = i
		}
		out := make([]tools.Tool, 0, len(pipeline)+1)
		out = append(out, pipeline[:at]...)
		out = append(out, toInsert)
		out = append(out, pipeline[at:]...)
		log.Debug().Str("tool", toInsert.Name()).Str("anchor", t.Name()).Bool("before", before).Msg("implicit tool inserted")
		return out
	}
	return pipeline
}

func sameTool(a, b tools.Tool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Name() == b.Name()
}

func containsTool(ts []tools.Tool, t tools.Tool) bool {
	for _, c := range ts {
		if sameTool(c, t) {
			return true
		}
	}
	return false
}

// Topology answers whether a tool runs elsewhere in the host's wider
// execution graph, upstream or downstream of the current call site.
type Topology interface {
	UpstreamHas(name string) bool
	DownstreamHas(name string) bool
}

// AutoInsert adds the configured writer before the first tool that reads
// the file key when nobody supplies it, and the configured reader after
// the first tool other than the writer that produces it. Both are gated by
// the auto_write and auto_read options. supplied holds the arguments the
// caller provides.
func AutoInsert(pipeline []tools.Tool, options *opts.Node, r *Resolver, topo Topology, supplied map[string]any) ([]tools.Tool, error) {
	if options == nil {
		return pipeline, nil
	}
	key := options.Str("file_input_key")
	if key == "" {
		return pipeline, nil
	}

	if options.Bool("auto_write") {
		if _, given := supplied[key]; !given {
			writer, err := single(r, options.Str("auto_write_tool"))
			if err != nil {
				return nil, err
			}
			pipeline = InsertImplicitTool(pipeline, writer,
				func(t tools.Tool) bool {
					return tools.Declares(t.Inputs(), key) && !tools.Declares(t.Outputs(), key)
				},
				true,
				func([]tools.Tool) bool { return topo != nil && topo.UpstreamHas(writer.Name()) },
			)
		}
	}

	if options.Bool("auto_read") {
		reader, err := single(r, options.Str("auto_read_tool"))
		if err != nil {
			return nil, err
		}
		pipeline = InsertImplicitTool(pipeline, reader,
			func(t tools.Tool) bool {
				return tools.Declares(t.Outputs(), key) && t.Name() != options.Str("auto_write_tool")
			},
			false,
			func([]tools.Tool) bool { return topo != nil && topo.DownstreamHas(reader.Name()) },
		)
	}
	return pipeline, nil
}

func single(r *Resolver, name string) (tools.Tool, error) {
	ts, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	if len(ts) != 1 {
		return nil, fmt.Errorf("pipeline: %q must name exactly one tool, got %d", name, len(ts))
	}
	return ts[0], nil
}
