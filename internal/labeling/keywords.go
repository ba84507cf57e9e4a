package labeling

import (
	"context"
	"strings"
)

const (
	GenericLabel = "TIN NỔI BẬT"
	EmptyLabel   = "TIN TỨC"
)

// Ordered; the first keyword found wins.
var keywordTable = []struct {
	keyword string
	label   string
}{
	{"chính trị", "CHÍNH TRỊ"},
	{"kinh tế", "KINH TẾ"},
	{"thể thao", "THỂ THAO"},
	{"giáo dục", "GIÁO DỤC"},
	{"y tế", "Y TẾ"},
	{"công nghệ", "CÔNG NGHỆ"},
	{"xã hội", "XÃ HỘI"},
	{"pháp luật", "PHÁP LUẬT"},
	{"quốc tế", "QUỐC TẾ"},
	{"địa phương", "ĐỊA PHƯƠNG"},
	{"văn hóa", "VĂN HÓA"},
	{"du lịch", "DU LỊCH"},
	{"môi trường", "MÔI TRƯỜNG"},
	{"giao thông", "GIAO THÔNG"},
	{"nepal", "NEPAL"},
	{"ba lan", "BA LAN"},
	{"nato", "NATO"},
	{"đại học", "GIÁO DỤC"},
	{"bắt giữ", "PHÁP LUẬT"},
	{"cảnh sát", "AN NINH"},
	{"công an", "AN NINH"},
}

// Keywords labels a cluster by the first table keyword that occurs in the
// lower-cased titles and descriptions. It never returns an empty name.
func Keywords(articles []Article) Label {
	if len(articles) == 0 {
		return Label{Name: EmptyLabel}
	}

	var b strings.Builder
	for _, a := range articles {
		b.WriteString(" ")
		b.WriteString(strings.ToLower(PlainText(a.Title)))
		b.WriteString(" ")
		b.WriteString(strings.ToLower(PlainText(a.Description)))
	}
	text := b.String()

	for _, entry := range keywordTable {
		if strings.Contains(text, entry.keyword) {
			return Label{Name: entry.label, Keywords: []string{entry.keyword}}
		}
	}
	return Label{Name: GenericLabel}
}

// KeywordLabeler exposes the keyword table as a Labeler.
type KeywordLabeler struct{}

func (KeywordLabeler) Available() bool { return true }

func (KeywordLabeler) GenerateLabel(_ context.Context, articles []Article, _ int) (Label, error) {
	return Keywords(articles), nil
}
