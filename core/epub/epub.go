// Package epub converts between EPUB containers and manuscripts.
//
// Import reads an EPUB archive and produces a fresh manuscript with one
// section per spine chapter. Export resolves a manuscript back into a
// minimal EPUB 3 archive, using the effective text of every change block.
package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/softcover/bowdler/core/encoding"
	"github.com/softcover/bowdler/core/errors"
	"github.com/softcover/bowdler/core/manuscript"
)

// Free-form header fields the importer records and the exporter reads back.
const (
	metaTitle  = "Title"
	metaAuthor = "Author"
	metaLang   = "Lang"
)

// Book is the in-memory shape of an EPUB being written.
type Book struct {
	Title      string
	Author     string
	Language   string
	Identifier string
	Chapters   []Chapter
	css        string
}

// Chapter is one spine entry. Content is XHTML body markup.
type Chapter struct {
	Title   string
	Content string
}

// Export resolves a manuscript into EPUB bytes. Accepted and manually
// edited change blocks contribute their cleaned text; everything else
// contributes the original.
func Export(doc *manuscript.Document) ([]byte, error) {
	book := &Book{
		Title:      doc.Meta(metaTitle),
		Author:     doc.Meta(metaAuthor),
		Language:   doc.Meta(metaLang),
		Identifier: doc.Source,
	}
	if book.Title == "" {
		book.Title = "Untitled"
	}
	if book.Language == "" {
		book.Language = "en"
	}

	for _, sec := range doc.Sections {
		title := sec.Title
		if title == "" {
			title = sec.Label
		}
		book.Chapters = append(book.Chapters, Chapter{
			Title:   title,
			Content: chapterBody(sec),
		})
	}

	return book.Build()
}

// WriteFile exports a manuscript to an EPUB file on disk.
func WriteFile(doc *manuscript.Document, path string) error {
	data, err := Export(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.NewIO("write", path, err)
	}
	return nil
}

// chapterBody renders a section's items as XHTML paragraphs. A change
// block whose effective text is empty is a deletion and contributes
// nothing.
func chapterBody(sec *manuscript.Section) string {
	var b strings.Builder
	for _, item := range sec.Items {
		switch item.Kind {
		case manuscript.ItemText:
			writePara(&b, item.Text)
		case manuscript.ItemChange:
			writePara(&b, manuscript.EffectiveText(item.Change))
		case manuscript.ItemImage:
			fmt.Fprintf(&b, "  <img src=\"%s\" alt=\"%s\"/>\n",
				encoding.EscapeXMLAttr(item.Image.Path),
				encoding.EscapeXMLAttr(item.Image.Caption))
		}
	}
	return b.String()
}

func writePara(b *strings.Builder, text string) {
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("  <p>")
		b.WriteString(encoding.EscapeXMLText(line))
		b.WriteString("</p>\n")
	}
}

// Build creates the EPUB as bytes.
func (b *Book) Build() ([]byte, error) {
	if len(b.Chapters) == 0 {
		return nil, fmt.Errorf("EPUB must have at least one chapter")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	// The mimetype entry must be first and uncompressed.
	mw, err := zw.CreateHeader(&zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	})
	if err != nil {
		return nil, err
	}
	if _, err := mw.Write([]byte("application/epub+zip")); err != nil {
		return nil, err
	}

	if err := b.addContainerXML(zw); err != nil {
		return nil, err
	}
	if err := b.addContentOPF(zw); err != nil {
		return nil, err
	}
	if err := b.addTocXHTML(zw); err != nil {
		return nil, err
	}
	if err := b.addCSS(zw); err != nil {
		return nil, err
	}
	for i, chapter := range b.Chapters {
		if err := b.addChapter(zw, i, chapter); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *Book) addContainerXML(zw *zip.Writer) error {
	w, err := zw.Create("META-INF/container.xml")
	if err != nil {
		return err
	}

	container := `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

	_, err = w.Write([]byte(container))
	return err
}

func (b *Book) addContentOPF(zw *zip.Writer) error {
	w, err := zw.Create("OEBPS/content.opf")
	if err != nil {
		return err
	}

	var manifestItems strings.Builder
	var spineItems strings.Builder

	manifestItems.WriteString(`    <item id="toc" href="toc.xhtml" media-type="application/xhtml+xml" properties="nav"/>` + "\n")
	manifestItems.WriteString(`    <item id="style" href="style.css" media-type="text/css"/>` + "\n")

	for i := range b.Chapters {
		id := fmt.Sprintf("chapter%d", i+1)
		manifestItems.WriteString(fmt.Sprintf(`    <item id="%s" href="text/%s.xhtml" media-type="application/xhtml+xml"/>`, id, id) + "\n")
		spineItems.WriteString(fmt.Sprintf(`    <itemref idref="%s"/>`, id) + "\n")
	}

	opf := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="BookId">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="BookId">%s</dc:identifier>
    <dc:title>%s</dc:title>
    <dc:creator>%s</dc:creator>
    <dc:language>%s</dc:language>
    <meta property="dcterms:modified">%s</meta>
  </metadata>
  <manifest>
%s  </manifest>
  <spine>
%s  </spine>
</package>`,
		encoding.EscapeXML(b.Identifier),
		encoding.EscapeXML(b.Title),
		encoding.EscapeXML(b.Author),
		encoding.EscapeXML(b.Language),
		time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		manifestItems.String(),
		spineItems.String(),
	)

	_, err = w.Write([]byte(opf))
	return err
}

func (b *Book) addTocXHTML(zw *zip.Writer) error {
	w, err := zw.Create("OEBPS/toc.xhtml")
	if err != nil {
		return err
	}

	var tocItems strings.Builder
	for i, chapter := range b.Chapters {
		tocItems.WriteString(fmt.Sprintf(`      <li><a href="text/chapter%d.xhtml">%s</a></li>
`, i+1, encoding.EscapeXML(chapter.Title)))
	}

	toc := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
  <title>Table of Contents</title>
  <link rel="stylesheet" type="text/css" href="style.css"/>
</head>
<body>
  <nav epub:type="toc" id="toc">
    <h1>Table of Contents</h1>
    <ol>
%s    </ol>
  </nav>
</body>
</html>`, tocItems.String())

	_, err = w.Write([]byte(toc))
	return err
}

func (b *Book) addCSS(zw *zip.Writer) error {
	w, err := zw.Create("OEBPS/style.css")
	if err != nil {
		return err
	}

	css := b.css
	if css == "" {
		css = `body {
  font-family: serif;
  margin: 1em;
  line-height: 1.6;
}
h1, h2, h3 {
  font-family: sans-serif;
}
p {
  text-indent: 1.5em;
  margin: 0.5em 0;
}
`
	}

	_, err = w.Write([]byte(css))
	return err
}

func (b *Book) addChapter(zw *zip.Writer, index int, chapter Chapter) error {
	w, err := zw.Create(fmt.Sprintf("OEBPS/text/chapter%d.xhtml", index+1))
	if err != nil {
		return err
	}

	xhtml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <title>%s</title>
  <link rel="stylesheet" type="text/css" href="../style.css"/>
</head>
<body>
  <h1>%s</h1>
%s</body>
</html>`,
		encoding.EscapeXML(chapter.Title),
		encoding.EscapeXML(chapter.Title),
		chapter.Content,
	)

	_, err = w.Write([]byte(xhtml))
	return err
}
