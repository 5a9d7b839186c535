package transport

import (
	"log/slog"
	"regexp"
	"strings"
)

// regexPipeline applies caller-configured pattern/replacement pairs to frame
// text: inbound rules run on each received line before parsing, outbound
// rules on each formatted line before transmission. Used to paper over
// firmware quirks without waiting for an upstream fix.
type regexPipeline struct {
	inbound  []regexRule
	outbound []regexRule
}

type regexRule struct {
	re   *regexp.Regexp
	repl string
}

// compileRegexPipeline compiles the rule maps; a pattern that fails to
// compile is logged and skipped rather than failing transport construction.
func compileRegexPipeline(inbound, outbound map[string]string, logger *slog.Logger) *regexPipeline {
	if len(inbound) == 0 && len(outbound) == 0 {
		return nil
	}
	p := &regexPipeline{}
	p.inbound = compileRules(inbound, logger)
	p.outbound = compileRules(outbound, logger)
	return p
}

func compileRules(rules map[string]string, logger *slog.Logger) []regexRule {
	out := make([]regexRule, 0, len(rules))
	for pattern, repl := range rules {
		re, err := regexp.Compile(pattern)
		if err != nil {
			logger.Warn("ignoring invalid use_regex pattern", "pattern", pattern, "err", err)
			continue
		}
		out = append(out, regexRule{re: re, repl: repl})
	}
	return out
}

func (p *regexPipeline) applyInbound(line string) string {
	if p == nil {
		return line
	}
	for _, r := range p.inbound {
		line = r.re.ReplaceAllString(line, r.repl)
	}
	return line
}

func (p *regexPipeline) applyOutbound(line string) string {
	if p == nil {
		return line
	}
	for _, r := range p.outbound {
		line = r.re.ReplaceAllString(line, r.repl)
	}
	return line
}

// checksumErrRE matches the evofw3 checksum-error annotation appended to
// encrypted-payload packets (certain 08:/31: HVAC devices); the annotation is
// noise on those devices, not a real corruption signal.
var checksumErrRE = regexp.MustCompile(`\s*\*\s*Checksum error.*$`)

// normalizeLine repairs known firmware line-mangling before a received line
// reaches the frame parser: doubled carriage returns, stray leading
// whitespace, and the checksum-error annotation on encrypted 08:/31:
// packets (demoted to nothing, i.e. treated as a comment).
func normalizeLine(line string) string {
	line = strings.ReplaceAll(line, "\r\r", "\r")
	line = strings.TrimRight(line, "\r\n")
	line = strings.TrimLeft(line, " \t")
	if strings.Contains(line, " 08:") || strings.Contains(line, " 31:") {
		line = checksumErrRE.ReplaceAllString(line, "")
	}
	return line
}
