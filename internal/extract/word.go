package extract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// extractWord reads the main document part of an OOXML archive. Legacy binary
// .doc files are not archives and fail here.
func extractWord(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty document")
	}

	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	return documentText(doc.Editable().GetContent())
}

// documentText walks document.xml and emits one line per paragraph. Tabs and
// breaks count only inside runs; property blocks such as <w:pPr><w:tabs>
// define layout and never produce text.
func documentText(content string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))

	var (
		out        strings.Builder
		line       strings.Builder
		inText     bool
		runDepth   int
		propsDepth int
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			inRun := runDepth > 0 && propsDepth == 0
			switch t.Name.Local {
			case "r":
				runDepth++
			case "pPr", "rPr", "sectPr", "tblPr":
				propsDepth++
			case "t":
				inText = inRun
			case "tab":
				if inRun {
					line.WriteByte('\t')
				}
			case "br", "cr":
				if inRun {
					line.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "r":
				if runDepth > 0 {
					runDepth--
				}
			case "pPr", "rPr", "sectPr", "tblPr":
				if propsDepth > 0 {
					propsDepth--
				}
			case "t":
				inText = false
			case "p":
				out.WriteString(line.String())
				out.WriteByte('\n')
				line.Reset()
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}

	out.WriteString(line.String())
	return strings.TrimRight(out.String(), "\n"), nil
}
