package htmlsanitize_test

import (
	"testing"

	"github.com/dalemusser/peerfinder/internal/app/system/htmlsanitize"
)

func TestText_Empty(t *testing.T) {
	if got := htmlsanitize.Text(""); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestText_PlainTextUnchanged(t *testing.T) {
	in := "Happy to help with Module 3 & 4"
	if got := htmlsanitize.Text(in); got != in {
		t.Errorf("Text(%q) = %q", in, got)
	}
}

func TestText_RemovesScript(t *testing.T) {
	got := htmlsanitize.Text("Hello<script>alert('xss')</script>")
	if got != "Hello" {
		t.Errorf("expected script removed, got %q", got)
	}
}

func TestText_RemovesTags(t *testing.T) {
	got := htmlsanitize.Text(`<b>Ada</b> <a href="javascript:x()">Obi</a>`)
	if got != "Ada Obi" {
		t.Errorf("expected tags stripped, got %q", got)
	}
}

func TestAnswers(t *testing.T) {
	got := htmlsanitize.Answers(map[string]string{
		"helpful": "<i>yes</i>",
		"notes":   "<script></script>",
	})
	if got["helpful"] != "yes" {
		t.Errorf("helpful = %q, want yes", got["helpful"])
	}
	if _, ok := got["notes"]; ok {
		t.Errorf("empty answer should be dropped, got %v", got)
	}
	if htmlsanitize.Answers(nil) != nil {
		t.Error("Answers(nil) should be nil")
	}
}
