package conversation

import "testing"

func TestParseEvent(t *testing.T) {
	cases := []struct {
		in   string
		kind EventKind
		arg  string
	}{
		{"/reset", EventReset, ""},
		{"/RESET", EventReset, ""},
		{"  /reset  ", EventReset, ""},
		{"/set_llm gemini", EventSetModel, "gemini"},
		{"/set_llm OLLAMA", EventSetModel, "ollama"},
		{"/set_llm", EventSetModel, ""},
		{"/set_llm gemini extra", EventSetModel, ""},
		{"/enable_rag", EventEnableRAG, ""},
		{"/disable_rag", EventDisableRAG, ""},
		{"hello there", EventText, ""},
		{"/unknown_command", EventText, ""},
	}

	for _, tc := range cases {
		event := ParseEvent(tc.in)
		if event.Kind != tc.kind {
			t.Errorf("ParseEvent(%q) kind = %v, want %v", tc.in, event.Kind, tc.kind)
		}
		if tc.kind == EventSetModel && event.Model != tc.arg {
			t.Errorf("ParseEvent(%q) model = %q, want %q", tc.in, event.Model, tc.arg)
		}
	}
}

func TestParseEvent_PreservesFreeTextVerbatim(t *testing.T) {
	event := ParseEvent("  My Name Is Jane  ")
	if event.Kind != EventText || event.Text != "  My Name Is Jane  " {
		t.Fatalf("free text altered: %+v", event)
	}
}
