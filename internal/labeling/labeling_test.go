package labeling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vnnews-clustering/internal/logging"
)

func TestKeywords(t *testing.T) {
	tests := []struct {
		name     string
		articles []Article
		want     string
	}{
		{name: "no articles", want: EmptyLabel},
		{name: "no keyword", articles: []Article{{Title: "Chuyện lạ", Description: "không gì"}}, want: GenericLabel},
		{name: "case insensitive", articles: []Article{{Title: "Đội tuyển THỂ THAO thắng lớn"}}, want: "THỂ THAO"},
		{name: "table order wins", articles: []Article{{Title: "Công an điều tra", Description: "vụ án kinh tế"}}, want: "KINH TẾ"},
		{name: "alias keyword", articles: []Article{{Description: "Tuyển sinh đại học 2025"}}, want: "GIÁO DỤC"},
		{name: "markup stripped", articles: []Article{{Description: "<p>Tập trận <b>NATO</b></p>"}}, want: "NATO"},
		{name: "later article", articles: []Article{{Title: "x"}, {Title: "Cảnh sát giao thông"}}, want: "GIAO THÔNG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Keywords(tt.articles).Name; got != tt.want {
				t.Fatalf("Keywords = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanLabel(t *testing.T) {
	tests := []struct {
		raw      string
		maxWords int
		want     string
	}{
		{`"bóng đá việt nam"`, 5, "BÓNG ĐÁ VIỆT NAM"},
		{`  'giáo dục'  `, 5, "GIÁO DỤC"},
		{"một hai ba bốn năm sáu", 5, "MỘT HAI BA BỐN NĂM"},
		{`""`, 5, ""},
	}
	for _, tt := range tests {
		if got := cleanLabel(tt.raw, tt.maxWords); got != tt.want {
			t.Errorf("cleanLabel(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestPlainText(t *testing.T) {
	if got := PlainText("<div>Hà   Nội <i>mưa</i></div>"); got != "Hà Nội mưa" {
		t.Fatalf("PlainText = %q", got)
	}
	if got := PlainText(" a \n b "); got != "a b" {
		t.Fatalf("PlainText = %q", got)
	}
}

type stubLabeler struct {
	available bool
	label     Label
	err       error
	calls     int
}

func (s *stubLabeler) Available() bool { return s.available }

func (s *stubLabeler) GenerateLabel(context.Context, []Article, int) (Label, error) {
	s.calls++
	return s.label, s.err
}

func TestResolveFallsBack(t *testing.T) {
	arts := []Article{{Title: "Giá vàng", Description: "thị trường kinh tế"}}
	tests := []struct {
		name      string
		primary   Labeler
		want      string
		wantCalls int
	}{
		{name: "nil", primary: nil, want: "KINH TẾ"},
		{name: "unavailable", primary: &stubLabeler{available: false}, want: "KINH TẾ"},
		{name: "error", primary: &stubLabeler{available: true, err: errors.New("boom")}, want: "KINH TẾ", wantCalls: 1},
		{name: "empty", primary: &stubLabeler{available: true, label: Label{Name: " "}}, want: "KINH TẾ", wantCalls: 1},
		{name: "primary", primary: &stubLabeler{available: true, label: Label{Name: "GIÁ VÀNG"}}, want: "GIÁ VÀNG", wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(context.Background(), tt.primary, arts, 5, logging.Discard())
			if got.Name != tt.want {
				t.Fatalf("Resolve = %q, want %q", got.Name, tt.want)
			}
			if s, ok := tt.primary.(*stubLabeler); ok && s.calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", s.calls, tt.wantCalls)
			}
		})
	}
}

func TestOpenAILabelerUnavailableWithoutKey(t *testing.T) {
	l, err := NewOpenAILabeler(OpenAIConfig{})
	if err != nil {
		t.Fatalf("NewOpenAILabeler: %v", err)
	}
	if l.Available() {
		t.Fatal("labeler without key must be unavailable")
	}
	if _, err := l.GenerateLabel(context.Background(), []Article{{Title: "x"}}, 5); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenAILabelerStructuredOutput(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		content, _ := json.Marshal(labelResponse{
			Label:    `"bóng đá việt nam giành chiến thắng lớn"`,
			Keywords: []string{"Bóng đá", "bóng đá", " tuyển "},
		})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": string(content)},
			}},
		})
	}))
	defer srv.Close()

	l, err := NewOpenAILabeler(OpenAIConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("NewOpenAILabeler: %v", err)
	}
	label, err := l.GenerateLabel(context.Background(), []Article{
		{Title: "Tuyển Việt Nam thắng", Description: "<p>Trận đấu</p>"},
	}, 5)
	if err != nil {
		t.Fatalf("GenerateLabel: %v", err)
	}
	if label.Name != "BÓNG ĐÁ VIỆT NAM GIÀNH CHIẾN" {
		t.Fatalf("label = %q", label.Name)
	}
	if len(label.Keywords) != 2 || label.Keywords[0] != "bóng đá" || label.Keywords[1] != "tuyển" {
		t.Fatalf("keywords = %v", label.Keywords)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Fatalf("model = %v", gotBody["model"])
	}
	rf, _ := gotBody["response_format"].(map[string]any)
	if rf["type"] != "json_schema" {
		t.Fatalf("response_format = %v", gotBody["response_format"])
	}
}
