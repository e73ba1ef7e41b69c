package shell

import "testing"

func TestParse_SimpleCommand(t *testing.T) {
	pc, err := Parse("ls -la /tmp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pc.IsComplex() {
		t.Fatalf("expected simple command")
	}
	if len(pc.Components) != 1 {
		t.Fatalf("expected 1 component, got %d", len(pc.Components))
	}
	comp := pc.Components[0]
	if comp.Head != "ls" {
		t.Fatalf("expected head 'ls', got %q", comp.Head)
	}
	if len(comp.Args) != 2 || comp.Args[0] != "-la" || comp.Args[1] != "/tmp" {
		t.Fatalf("unexpected args: %v", comp.Args)
	}
}

func TestParse_QuotedArgumentsPreserveSpaces(t *testing.T) {
	pc, err := Parse(`echo "hello world" 'literal $VAR'`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	comp := pc.Components[0]
	if len(comp.Args) != 2 {
		t.Fatalf("expected 2 args, got %v", comp.Args)
	}
	if comp.Args[0] != "hello world" {
		t.Fatalf("expected quoted arg preserved, got %q", comp.Args[0])
	}
	if comp.Args[1] != "literal $VAR" {
		t.Fatalf("expected single-quote literal, got %q", comp.Args[1])
	}
}

func TestParse_RedirectionAloneIsNotComplex(t *testing.T) {
	pc, err := Parse("echo hi > out.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pc.IsComplex() {
		t.Fatalf("redirection alone must not make a command complex")
	}
	if !pc.Structure.HasRedirection {
		t.Fatalf("expected HasRedirection true")
	}
}

func TestParse_PipeIsComplex(t *testing.T) {
	pc, err := Parse("ls | grep foo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pc.IsComplex() {
		t.Fatalf("expected pipe to make command complex")
	}
	if len(pc.Components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(pc.Components))
	}
}

func TestParse_LogicalAndSequential(t *testing.T) {
	pc, err := Parse("make build && make test; echo done")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pc.Structure.HasLogicalAnd || !pc.Structure.HasSequential {
		t.Fatalf("expected HasLogicalAnd and HasSequential, got %+v", pc.Structure)
	}
	if len(pc.Components) != 3 {
		t.Fatalf("expected 3 components, got %d", len(pc.Components))
	}
}

func TestParse_CommandSubstitutionRecorded(t *testing.T) {
	pc, err := Parse("echo $(whoami)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pc.Structure.HasSubstitution {
		t.Fatalf("expected HasSubstitution true")
	}
	if len(pc.Substitutions) != 1 || pc.Substitutions[0] != "whoami" {
		t.Fatalf("expected substitution 'whoami', got %v", pc.Substitutions)
	}
}

func TestParse_BacktickSubstitutionRecorded(t *testing.T) {
	pc, err := Parse("echo `date +%s`")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pc.Substitutions) != 1 || pc.Substitutions[0] != "date +%s" {
		t.Fatalf("unexpected substitutions: %v", pc.Substitutions)
	}
}

func TestParse_UnclosedQuoteIsParseError(t *testing.T) {
	pc, err := Parse(`echo "unterminated`)
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if pc.ParseError == "" {
		t.Fatalf("expected ParseError to be set on the returned command")
	}
}

func TestParse_EmptyInput(t *testing.T) {
	pc, err := Parse("   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pc.Components) != 0 {
		t.Fatalf("expected no components for empty input")
	}
}

func TestParse_BackgroundOperator(t *testing.T) {
	pc, err := Parse("sleep 10 &")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pc.Structure.HasBackground {
		t.Fatalf("expected HasBackground true")
	}
}
