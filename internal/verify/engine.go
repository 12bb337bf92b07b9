package verify

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"example.com/scpgate/internal/scp"
)

type Status string

const (
	PASS Status = "PASS"
	WARN Status = "WARN"
	FAIL Status = "FAIL"
)

// Finding is one verification result. Detail describes what was checked or
// what leaked in structural terms; raw field contents are never echoed for
// failing identity checks beyond the matched pattern text.
type Finding struct {
	Ts     time.Time `json:"ts"`
	File   string    `json:"file,omitempty"`
	Check  string    `json:"check"`
	Status Status    `json:"status"`
	Tag    *uint8    `json:"tag,omitempty"`
	Offset int64     `json:"offset,omitempty"`
	Detail string    `json:"detail"`
}

// Report aggregates the findings of one verification run.
type Report struct {
	Summary struct {
		Total    int  `json:"total"`
		Failures int  `json:"failures"`
		Warnings int  `json:"warnings"`
		Pass     bool `json:"pass"`
	} `json:"summary"`
	Findings []Finding `json:"findings,omitempty"`
}

// Context carries the buffers under verification. Original is optional; the
// signal-integrity comparison is skipped without it.
type Context struct {
	OutputFile string
	Output     []byte
	Original   []byte
	Config     scp.Config

	parsed *scp.File
}

// ensureParsed parses Output once per run. A parse failure is surfaced to the
// engine, which converts it into a single FAIL finding and stops.
func (ctx *Context) ensureParsed() error {
	if ctx == nil {
		return errors.New("nil context")
	}
	if ctx.parsed != nil {
		return nil
	}
	f, err := scp.Parse(ctx.Output)
	if err != nil {
		return err
	}
	ctx.parsed = f
	return nil
}

// CheckFunc inspects the context and reports zero or more findings. The bool
// result is false when the check could not run (missing input) and should be
// counted as skipped rather than passed.
type CheckFunc func(ctx *Context) ([]Finding, bool, error)

type Engine struct {
	registry map[string]CheckFunc
	findings []Finding
}

func NewEngine() *Engine {
	return &Engine{registry: make(map[string]CheckFunc)}
}

func (e *Engine) Register(name string, f CheckFunc) {
	e.registry[name] = f
}

// Eval runs every registered check against the context. Checks run in name
// order so reports are stable across runs. A parse failure short-circuits into
// a single structural FAIL finding.
func (e *Engine) Eval(ctx *Context) ([]Finding, error) {
	if ctx == nil {
		return nil, errors.New("nil context")
	}
	now := time.Now().UTC()
	if err := ctx.ensureParsed(); err != nil {
		e.findings = []Finding{{
			Ts: now, File: ctx.OutputFile, Check: "parse", Status: FAIL,
			Detail: fmt.Sprintf("file does not parse: %v", err),
		}}
		return e.findings, nil
	}

	names := make([]string, 0, len(e.registry))
	for name := range e.registry {
		names = append(names, name)
	}
	sort.Strings(names)

	var findings []Finding
	for _, name := range names {
		fs, ran, err := e.registry[name](ctx)
		if err != nil {
			findings = append(findings, Finding{
				Ts: now, File: ctx.OutputFile, Check: name, Status: FAIL,
				Detail: fmt.Sprintf("check failed to run: %v", err),
			})
			continue
		}
		if !ran {
			continue
		}
		if len(fs) == 0 {
			fs = []Finding{{Check: name, Status: PASS, Detail: "ok"}}
		}
		for i := range fs {
			if fs[i].Ts.IsZero() {
				fs[i].Ts = now
			}
			if fs[i].File == "" {
				fs[i].File = ctx.OutputFile
			}
			if fs[i].Check == "" {
				fs[i].Check = name
			}
		}
		findings = append(findings, fs...)
	}
	e.findings = findings
	return findings, nil
}

// MakeReport summarizes the last Eval. The verdict passes iff no finding
// failed; warnings alone do not block.
func (e *Engine) MakeReport() Report {
	var rep Report
	var fails, warns int
	for _, f := range e.findings {
		switch f.Status {
		case FAIL:
			fails++
		case WARN:
			warns++
		}
	}
	rep.Summary.Total = len(e.findings)
	rep.Summary.Failures = fails
	rep.Summary.Warnings = warns
	rep.Summary.Pass = fails == 0
	rep.Findings = e.findings
	return rep
}

func (e *Engine) WriteFindingsNDJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()
	for _, d := range e.findings {
		b, _ := json.Marshal(d)
		w.Write(b)
		w.WriteString("\n")
	}
	return nil
}

// Verify is the convenience entry point: registers the builtin checks, runs
// them, and returns the report.
func Verify(ctx *Context) (Report, error) {
	e := NewEngine()
	RegisterBuiltins(e)
	if _, err := e.Eval(ctx); err != nil {
		return Report{}, err
	}
	return e.MakeReport(), nil
}
