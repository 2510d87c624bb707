package secfilings

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// htmlToMarkdown strips chrome from a filing page and converts the body
// to markdown. baseURL is used to resolve relative links.
func htmlToMarkdown(html, baseURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse filing HTML: %w", err)
	}

	doc.Find("script, style, nav, header, footer, aside").Remove()

	var cleaned string
	if body := doc.Find("body"); body.Length() > 0 {
		cleaned, err = body.Html()
	} else {
		cleaned, err = doc.Html()
	}
	if err != nil {
		return "", fmt.Errorf("failed to serialize filing HTML: %w", err)
	}

	converter := md.NewConverter(baseURL, true, nil)
	markdown, err := converter.ConvertString(cleaned)
	if err != nil {
		return "", fmt.Errorf("failed to convert filing to markdown: %w", err)
	}

	return markdown, nil
}

// extractPDFText extracts text from a PDF document. pdfcpu works on
// files, so the document is staged in the client temp directory for the
// duration of the call.
func (c *Client) extractPDFText(data []byte) (string, error) {
	stamp := time.Now().UnixNano()
	tempFile := filepath.Join(c.tempDir, fmt.Sprintf("filing_%d_%d.pdf", os.Getpid(), stamp))
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write temp PDF file: %w", err)
	}
	defer os.Remove(tempFile)

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return "", fmt.Errorf("failed to read PDF context: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(c.tempDir, fmt.Sprintf("pages_%d_%d", os.Getpid(), stamp))
	os.MkdirAll(outDir, 0755)
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("failed to extract PDF content: %w", err)
	}

	// pdfcpu writes one content file per page; the naming differs across
	// versions.
	files, _ := os.ReadDir(outDir)
	pageTexts := make(map[int]string)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		} else if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		}
	}

	var builder strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		text := strings.TrimSpace(pageTexts[pageNum])
		if text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(text)
	}

	return builder.String(), nil
}

// mdaHeading matches the start of the MD&A section. Filings use either a
// straight or a typographic apostrophe.
var mdaHeading = regexp.MustCompile(`(?i)management[’']s\s+discussion\s+and\s+analysis`)

// mdaEnd matches the headings that follow MD&A in 10-K and 10-Q filings.
var mdaEnd = regexp.MustCompile(`(?i)item\s*7a\b|item\s*8\b|item\s*3\.?\s+quantitative|quantitative\s+and\s+qualitative\s+disclosures`)

// SliceMDA returns the MD&A section of a filing document. The heading
// appears in the table of contents and in cross-references as well as at
// the section itself, so every match is tried and the longest resulting
// slice wins. When no heading is found the whole text is returned, so
// short or unusual documents still produce something to summarize.
func SliceMDA(text string) string {
	locs := mdaHeading.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return strings.TrimSpace(text)
	}

	var best string
	for _, loc := range locs {
		section := text[loc[0]:]
		if end := mdaEnd.FindStringIndex(section[1:]); end != nil {
			section = section[:end[0]+1]
		}
		if len(section) > len(best) {
			best = section
		}
	}

	return strings.TrimSpace(best)
}

// Excerpt returns the first max characters of text with whitespace runs
// collapsed. Fallback filing summaries attach it so a reader gets the
// opening of the MD&A even without an LLM summary.
func Excerpt(text string, max int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) <= max {
		return collapsed
	}
	return strings.TrimSpace(string(runes[:max]))
}
