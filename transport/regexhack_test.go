package transport

import (
	"log/slog"
	"testing"
)

func TestNormalizeLineRepairsFirmwareMangling(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  RQ --- 18:000730 01:145038 --:------ 1F09 001 00\r\n", "RQ --- 18:000730 01:145038 --:------ 1F09 001 00"},
		{"RQ --- 18:000730 01:145038 --:------ 1F09 001 00\r\r\n", "RQ --- 18:000730 01:145038 --:------ 1F09 001 00"},
		{" I --- 31:123456 --:------ 31:123456 31DA 002 0000 * Checksum error", " I --- 31:123456 --:------ 31:123456 31DA 002 0000"},
	}
	for _, c := range cases {
		if got := normalizeLine(c.in); got != c.want {
			t.Errorf("normalizeLine(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRegexPipelineAppliesRules(t *testing.T) {
	p := compileRegexPipeline(
		map[string]string{` 30:  `: " 30:"},
		map[string]string{`^ W`: " I"},
		slog.Default(),
	)

	if got := p.applyInbound("RQ --- 30:  123456"); got != "RQ --- 30:123456" {
		t.Errorf("inbound rule not applied: %q", got)
	}
	if got := p.applyOutbound(" W --- 18:000730"); got != " I --- 18:000730" {
		t.Errorf("outbound rule not applied: %q", got)
	}
}

func TestRegexPipelineNilIsPassthrough(t *testing.T) {
	var p *regexPipeline
	if got := p.applyInbound("abc"); got != "abc" {
		t.Errorf("nil pipeline changed input: %q", got)
	}
}

func TestCompileRegexPipelineSkipsBadPattern(t *testing.T) {
	p := compileRegexPipeline(map[string]string{`(`: "x", `a`: "b"}, nil, slog.Default())
	if len(p.inbound) != 1 {
		t.Fatalf("expected the invalid pattern skipped, got %d rules", len(p.inbound))
	}
}
