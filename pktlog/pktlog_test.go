package pktlog

import (
	"strings"
	"testing"
)

func TestParseLineStripsHintsAndAnnotations(t *testing.T) {
	raw := "2023-11-30 12:00:00.123456 000 RQ --- 18:000730 01:145038 --:------ 000A 002 0800 < hint # 000A|RQ|01:145038|08"
	line, ok, err := ParseLine(raw)
	if err != nil || !ok {
		t.Fatalf("ParseLine: ok=%v err=%v", ok, err)
	}
	if line.Text != "000 RQ --- 18:000730 01:145038 --:------ 000A 002 0800" {
		t.Errorf("unexpected text: %q", line.Text)
	}
	if line.Comment != "000A|RQ|01:145038|08" {
		t.Errorf("unexpected comment: %q", line.Comment)
	}
}

func TestParseLineSkipsFullLineComments(t *testing.T) {
	for _, raw := range []string{"", "   ", "# a log header"} {
		_, ok, err := ParseLine(raw)
		if err != nil || ok {
			t.Errorf("ParseLine(%q): ok=%v err=%v, want ok=false err=nil", raw, ok, err)
		}
	}
}

func TestParseLineCapturesErrorAnnotation(t *testing.T) {
	raw := "2023-11-30 12:00:00.000000 RQ --- 18:000730 01:145038 --:------ 000A 002 0800 * checksum failure"
	line, ok, err := ParseLine(raw)
	if err != nil || !ok {
		t.Fatalf("ParseLine: ok=%v err=%v", ok, err)
	}
	if line.ErrMsg != "checksum failure" {
		t.Errorf("unexpected err_msg: %q", line.ErrMsg)
	}
}

func TestScannerRoundTrip(t *testing.T) {
	input := strings.Join([]string{
		"# header comment",
		"2023-11-30 12:00:00.000000 RQ --- 18:000730 01:145038 --:------ 1F09 001 00",
		"",
		"2023-11-30 12:00:01.000000 RP --- 01:145038 18:000730 --:------ 1F09 003 FF0A04",
	}, "\n")

	sc := NewScanner(strings.NewReader(input))
	var got []Line
	for sc.Scan() {
		got = append(got, sc.Line())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scanner error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(got))
	}
	if !strings.Contains(got[0].Text, "1F09") {
		t.Errorf("unexpected first line: %+v", got[0])
	}
}
