package sheet

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	apperrors "github.com/linkpulse/collector/internal/errors"
)

func buildWorkbook(t *testing.T, sheetNames []string, thirdSheetCells map[string]string) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, name := range sheetNames {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if _, err := f.NewSheet(name); err != nil {
			t.Fatal(err)
		}
	}

	if len(sheetNames) >= 3 {
		for cell, value := range thirdSheetCells {
			if err := f.SetCellValue(sheetNames[2], cell, value); err != nil {
				t.Fatal(err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractPostURLs_RequiresThreeSheets(t *testing.T) {
	data := buildWorkbook(t, []string{"Discovery", "Engagement"}, nil)

	_, err := ExtractPostURLs(data)
	if err == nil {
		t.Fatal("expected format error")
	}
	if apperrors.FromError(err).Code != apperrors.CodeFormat {
		t.Errorf("error code = %s, want %s", apperrors.FromError(err).Code, apperrors.CodeFormat)
	}
}

func TestExtractPostURLs_ScansFromFourthRow(t *testing.T) {
	data := buildWorkbook(t, []string{"Discovery", "Engagement", "Top posts"}, map[string]string{
		// Header rows (indexes 0-2) must be ignored even when they hold
		// something URL-shaped.
		"A1": "Top posts",
		"A2": "https://www.linkedin.com/posts/header_activity-1234567890123456789-head",
		"A3": "Post URL",
		// Data rows.
		"A4": "https://www.linkedin.com/posts/jane-doe_go-activity-7341072233987026944-Ab3X",
		"A5": "not a url",
		"A6": "",
		"A7": "https://www.linkedin.com/feed/update/urn:li:activity:7341072233987026945/",
		"B8": "https://www.linkedin.com/posts/wrong-column_activity-7341072233987026946-Cd5Y",
	})

	urls, err := ExtractPostURLs(data)
	if err != nil {
		t.Fatalf("ExtractPostURLs: %v", err)
	}

	want := []string{
		"https://www.linkedin.com/posts/jane-doe_go-activity-7341072233987026944-Ab3X",
		"https://www.linkedin.com/feed/update/urn:li:activity:7341072233987026945/",
	}
	if len(urls) != len(want) {
		t.Fatalf("got %d urls %v, want %d", len(urls), urls, len(want))
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("urls[%d] = %q, want %q", i, urls[i], want[i])
		}
	}
}

func TestExtractPostURLs_EmptyThirdSheet(t *testing.T) {
	data := buildWorkbook(t, []string{"Discovery", "Engagement", "Top posts"}, nil)

	urls, err := ExtractPostURLs(data)
	if err != nil {
		t.Fatalf("ExtractPostURLs: %v", err)
	}
	if len(urls) != 0 {
		t.Errorf("got %v, want empty", urls)
	}
}

func TestExtractPostURLs_GarbageBytes(t *testing.T) {
	_, err := ExtractPostURLs([]byte("definitely not a zip archive"))
	if err == nil {
		t.Fatal("expected format error")
	}
	if apperrors.FromError(err).Code != apperrors.CodeFormat {
		t.Errorf("error code = %s, want %s", apperrors.FromError(err).Code, apperrors.CodeFormat)
	}
}
