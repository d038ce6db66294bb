package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
)

// JSONLDBlock is the outcome of parsing one ld+json script. Exactly one of
// Data and Err is set.
type JSONLDBlock struct {
	Data json.RawMessage
	Err  error
}

// OK reports whether the block parsed.
func (b JSONLDBlock) OK() bool {
	return b.Err == nil
}

// ParseJSONLD validates and compacts the body of a JSON-LD script.
func ParseJSONLD(raw string) JSONLDBlock {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return JSONLDBlock{Err: fmt.Errorf("parse json-ld: %w", err)}
	}
	if buf.Len() == 0 {
		return JSONLDBlock{Err: fmt.Errorf("parse json-ld: empty script")}
	}
	return JSONLDBlock{Data: json.RawMessage(buf.Bytes())}
}

// schemaMarkup parses every ld+json script independently. Invalid blocks are
// counted in Skipped and left out of JSONLD.
func schemaMarkup(doc *goquery.Document) crawler.SchemaMarkup {
	markup := crawler.SchemaMarkup{
		JSONLD:       []json.RawMessage{},
		HasMicrodata: exists(doc, "[itemtype]"),
	}
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		block := ParseJSONLD(s.Text())
		if !block.OK() {
			markup.Skipped++
			return
		}
		markup.JSONLD = append(markup.JSONLD, block.Data)
	})
	markup.Count = len(markup.JSONLD)
	return markup
}
