package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/google/uuid"

	"github.com/softcover/bowdler/core/errors"
	"github.com/softcover/bowdler/core/manuscript"
)

// XPath expressions are namespace-agnostic: EPUB producers disagree on
// prefixing, so everything matches on local names.
var (
	exprRootfile = xpath.MustCompile("//*[local-name()='rootfile']")
	exprManifest = xpath.MustCompile("//*[local-name()='manifest']/*[local-name()='item']")
	exprSpine    = xpath.MustCompile("//*[local-name()='spine']/*[local-name()='itemref']")
	exprHeading  = xpath.MustCompile("//*[local-name()='h1' or local-name()='h2']")
	exprTitle    = xpath.MustCompile("//*[local-name()='title']")
	exprFlow     = xpath.MustCompile("//*[local-name()='p' or local-name()='img']")
)

// Import reads an EPUB file and produces a fresh manuscript with one
// section per spine chapter and no change blocks.
func Import(epubPath string) (*manuscript.Document, error) {
	data, err := os.ReadFile(epubPath)
	if err != nil {
		return nil, errors.NewIO("read", epubPath, err)
	}
	return ImportBytes(data)
}

// ImportBytes imports an EPUB from memory.
func ImportBytes(data []byte) (*manuscript.Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid EPUB archive: %w", err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	opfPath, err := rootfilePath(files)
	if err != nil {
		return nil, err
	}

	opf, err := parseZipXML(files, opfPath)
	if err != nil {
		return nil, err
	}

	identifier := opfText(opf, "identifier")
	if identifier == "" {
		identifier = "urn:uuid:" + uuid.NewString()
	}

	doc := manuscript.New(identifier)
	if v := opfText(opf, "title"); v != "" {
		doc.SetMeta(metaTitle, v)
	}
	if v := opfText(opf, "creator"); v != "" {
		doc.SetMeta(metaAuthor, v)
	}
	if v := opfText(opf, "language"); v != "" {
		doc.SetMeta(metaLang, v)
	}

	hrefs, err := spineHrefs(opf)
	if err != nil {
		return nil, err
	}

	opfDir := path.Dir(opfPath)
	for i, href := range hrefs {
		chapterPath := path.Join(opfDir, href)
		page, err := parseZipXML(files, chapterPath)
		if err != nil {
			return nil, fmt.Errorf("chapter %s: %w", href, err)
		}
		importChapter(doc, page, href, i+1)
	}

	if len(doc.Sections) == 0 {
		return nil, fmt.Errorf("EPUB has no spine chapters")
	}
	return doc, nil
}

// rootfilePath locates the OPF package document via META-INF/container.xml.
func rootfilePath(files map[string]*zip.File) (string, error) {
	root, err := parseZipXML(files, "META-INF/container.xml")
	if err != nil {
		return "", err
	}
	node := xmlquery.QuerySelector(root, exprRootfile)
	if node == nil {
		return "", fmt.Errorf("invalid EPUB: container.xml has no rootfile entry")
	}
	p := node.SelectAttr("full-path")
	if p == "" {
		return "", fmt.Errorf("invalid EPUB: rootfile has no full-path")
	}
	return p, nil
}

// opfText returns the trimmed text of a Dublin Core metadata element.
func opfText(opf *xmlquery.Node, local string) string {
	node, err := xmlquery.Query(opf, fmt.Sprintf("//*[local-name()='metadata']/*[local-name()='%s']", local))
	if err != nil || node == nil {
		return ""
	}
	return strings.TrimSpace(node.InnerText())
}

// spineHrefs returns the chapter hrefs in spine order, resolved through
// the manifest.
func spineHrefs(opf *xmlquery.Node) ([]string, error) {
	items := xmlquery.QuerySelectorAll(opf, exprManifest)
	manifest := make(map[string]string, len(items))
	for _, item := range items {
		manifest[item.SelectAttr("id")] = item.SelectAttr("href")
	}

	refs := xmlquery.QuerySelectorAll(opf, exprSpine)

	var hrefs []string
	for _, ref := range refs {
		id := ref.SelectAttr("idref")
		href, ok := manifest[id]
		if !ok {
			return nil, fmt.Errorf("invalid EPUB: spine references unknown manifest id %q", id)
		}
		hrefs = append(hrefs, href)
	}
	return hrefs, nil
}

// importChapter appends one section for a spine chapter. Paragraph text
// is collapsed to a single line so each paragraph occupies exactly one
// content line in the manuscript.
func importChapter(doc *manuscript.Document, page *xmlquery.Node, href string, seq int) {
	label := strings.TrimSuffix(path.Base(href), path.Ext(href))
	sec := doc.AddSection(label)

	if h := xmlquery.QuerySelector(page, exprHeading); h != nil {
		sec.Title = collapse(h.InnerText())
	} else if t := xmlquery.QuerySelector(page, exprTitle); t != nil {
		sec.Title = collapse(t.InnerText())
	}
	if sec.Title == "" {
		sec.Title = fmt.Sprintf("Chapter %d", seq)
	}

	nodes := xmlquery.QuerySelectorAll(page, exprFlow)
	for _, n := range nodes {
		switch n.Data {
		case "p":
			if text := collapse(n.InnerText()); text != "" {
				sec.AddText(text)
			}
		case "img":
			if src := n.SelectAttr("src"); src != "" {
				sec.AddImage(src, n.SelectAttr("alt"))
			}
		}
	}
}

func parseZipXML(files map[string]*zip.File, name string) (*xmlquery.Node, error) {
	f, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("invalid EPUB: missing %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	node, err := xmlquery.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return node, nil
}

// collapse folds all runs of whitespace, including newlines, into single
// spaces. Imported paragraphs must be single-line.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
