package diagnostics

import (
	"errors"

	"github.com/coreman2200/rivesched/internal/engine"
)

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

const (
	CodeLookup      = "LOOKUP.MISSING"
	CodeLoad        = "ASSET.LOAD_FAILED"
	CodeInput       = "INPUT.UNRESOLVED"
	CodeComponent   = "COMPONENT.MISSING"
	CodeCommand     = "COMMAND.REJECTED"
	CodeSurface     = "SURFACE.WRITE_FAILED"
	CodeEmitter     = "EMITTER.DISCONNECTED"
	CodeSceneReady  = "SCENE.READY"
	CodeSceneClosed = "SCENE.CLOSED"
)

type Diagnostic struct {
	Severity       Severity       `json:"severity" msgpack:"severity"`
	Code           string         `json:"code" msgpack:"code"`
	Summary        string         `json:"summary" msgpack:"summary"`
	Detail         string         `json:"detail,omitempty" msgpack:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty" msgpack:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty" msgpack:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty" msgpack:"evidence,omitempty"`
}

// FromError classifies err. Lookup failures carry the available names as
// evidence so a host can show what it could have asked for.
func FromError(source string, err error) Diagnostic {
	var lerr *engine.LookupError
	if errors.As(err, &lerr) {
		return Diagnostic{
			Severity:       Err,
			Code:           CodeLookup,
			Summary:        lerr.Kind + " not found",
			Detail:         err.Error(),
			LikelyCauses:   []string{"name or index does not exist in the asset", "asset was re-exported with renamed items"},
			SuggestedFixes: []string{"pick one of the available names"},
			Evidence:       map[string]any{"source": source, "available": lerr.Available},
		}
	}
	return Diagnostic{
		Severity: Err,
		Code:     CodeCommand,
		Summary:  "operation failed",
		Detail:   err.Error(),
		Evidence: map[string]any{"source": source},
	}
}

func LoadFailed(asset string, err error) Diagnostic {
	return Diagnostic{
		Severity:       Err,
		Code:           CodeLoad,
		Summary:        "asset could not be loaded",
		Detail:         err.Error(),
		LikelyCauses:   []string{"file missing from the asset folder", "file is not a compiled asset"},
		SuggestedFixes: []string{"check the folder and name in the scene config"},
		Evidence:       map[string]any{"asset": asset},
	}
}

func InputUnresolved(machine, input string) Diagnostic {
	return Diagnostic{
		Severity: Warn,
		Code:     CodeInput,
		Summary:  "input not declared by the state machine",
		Detail:   "writes to this input are ignored",
		Evidence: map[string]any{"machine": machine, "input": input},
	}
}

func ComponentMissing(kind, name string) Diagnostic {
	return Diagnostic{
		Severity:       Warn,
		Code:           CodeComponent,
		Summary:        kind + " not found on the artboard",
		Detail:         "values are kept and applied when an artboard with it is selected",
		SuggestedFixes: []string{"check the component name and kind"},
		Evidence:       map[string]any{"kind": kind, "name": name},
	}
}

func Rejected(target, attr string, err error) Diagnostic {
	return Diagnostic{
		Severity: Warn,
		Code:     CodeCommand,
		Summary:  "command rejected",
		Detail:   err.Error(),
		Evidence: map[string]any{"target": target, "attr": attr},
	}
}

func SurfaceFailed(err error) Diagnostic {
	return Diagnostic{
		Severity:     Err,
		Code:         CodeSurface,
		Summary:      "frame could not be written to the surface",
		Detail:       err.Error(),
		LikelyCauses: []string{"SPI port busy or unplugged", "surface halted during shutdown"},
	}
}

func EmitterDown(broker string, err error) Diagnostic {
	d := Diagnostic{
		Severity: Warn,
		Code:     CodeEmitter,
		Summary:  "lost connection to the broker",
		Evidence: map[string]any{"broker": broker},
	}
	if err != nil {
		d.Detail = err.Error()
	}
	return d
}

func SceneReady(file, artboard string) Diagnostic {
	return Diagnostic{
		Severity: Info,
		Code:     CodeSceneReady,
		Summary:  "scene loaded",
		Evidence: map[string]any{"file": file, "artboard": artboard},
	}
}

func SceneClosed(file string) Diagnostic {
	return Diagnostic{
		Severity: Info,
		Code:     CodeSceneClosed,
		Summary:  "scene closed",
		Evidence: map[string]any{"file": file},
	}
}
