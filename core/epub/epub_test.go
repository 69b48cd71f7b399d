package epub

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/softcover/bowdler/core/manuscript"
)

func buildTestEPUB(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

const testContainer = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const testOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="BookId">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="BookId">urn:isbn:9780000000001</dc:identifier>
    <dc:title>Moby-Dick</dc:title>
    <dc:creator>Herman Melville</dc:creator>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>
    <item id="ch1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="text/ch2.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
  </spine>
</package>`

const testChapter1 = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>ignored</title></head>
<body>
  <h1>Loomings</h1>
  <p>Call me Ishmael.</p>
  <p>Some years ago,
     never mind how long
     precisely.</p>
  <img src="../images/whale.jpg" alt="a whale"/>
  <p>   </p>
</body>
</html>`

const testChapter2 = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>The Carpet-Bag</title></head>
<body>
  <p>I stuffed a shirt or two into my old carpet-bag.</p>
</body>
</html>`

func testEPUBFiles() map[string]string {
	return map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": testContainer,
		"OEBPS/content.opf":      testOPF,
		"OEBPS/text/ch1.xhtml":   testChapter1,
		"OEBPS/text/ch2.xhtml":   testChapter2,
	}
}

func TestImportBytes(t *testing.T) {
	doc, err := ImportBytes(buildTestEPUB(t, testEPUBFiles()))
	if err != nil {
		t.Fatalf("ImportBytes: %v", err)
	}

	if doc.Source != "urn:isbn:9780000000001" {
		t.Errorf("Source = %q", doc.Source)
	}
	if got := doc.Meta("Title"); got != "Moby-Dick" {
		t.Errorf("Title = %q", got)
	}
	if got := doc.Meta("Author"); got != "Herman Melville" {
		t.Errorf("Author = %q", got)
	}
	if got := doc.Meta("Lang"); got != "en" {
		t.Errorf("Lang = %q", got)
	}

	if len(doc.Sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(doc.Sections))
	}

	sec := doc.Sections[0]
	if sec.Label != "ch1" {
		t.Errorf("Label = %q", sec.Label)
	}
	if sec.Title != "Loomings" {
		t.Errorf("Title = %q", sec.Title)
	}
	if len(sec.Items) != 3 {
		t.Fatalf("got %d items, want 3: %+v", len(sec.Items), sec.Items)
	}
	if sec.Items[0].Text != "Call me Ishmael." {
		t.Errorf("first paragraph = %q", sec.Items[0].Text)
	}
	// Multi-line source paragraphs collapse to a single line.
	if sec.Items[1].Text != "Some years ago, never mind how long precisely." {
		t.Errorf("second paragraph = %q", sec.Items[1].Text)
	}
	img := sec.Items[2]
	if img.Kind != manuscript.ItemImage || img.Image.Path != "../images/whale.jpg" || img.Image.Caption != "a whale" {
		t.Errorf("image item = %+v", img)
	}

	sec2 := doc.Sections[1]
	if sec2.Title != "The Carpet-Bag" {
		t.Errorf("fallback title = %q", sec2.Title)
	}
	if len(sec2.Items) != 1 || sec2.Items[0].Text != "I stuffed a shirt or two into my old carpet-bag." {
		t.Errorf("chapter 2 items = %+v", sec2.Items)
	}
}

func TestImportGeneratesIdentifier(t *testing.T) {
	files := testEPUBFiles()
	files["OEBPS/content.opf"] = strings.Replace(testOPF,
		"urn:isbn:9780000000001", "", 1)

	doc, err := ImportBytes(buildTestEPUB(t, files))
	if err != nil {
		t.Fatalf("ImportBytes: %v", err)
	}
	if !strings.HasPrefix(doc.Source, "urn:uuid:") || len(doc.Source) <= len("urn:uuid:") {
		t.Errorf("Source = %q, want generated urn:uuid", doc.Source)
	}
}

func TestImportErrors(t *testing.T) {
	t.Run("not a zip", func(t *testing.T) {
		if _, err := ImportBytes([]byte("plain text")); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("missing container", func(t *testing.T) {
		files := testEPUBFiles()
		delete(files, "META-INF/container.xml")
		_, err := ImportBytes(buildTestEPUB(t, files))
		if err == nil || !strings.Contains(err.Error(), "container.xml") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("spine references unknown id", func(t *testing.T) {
		files := testEPUBFiles()
		files["OEBPS/content.opf"] = strings.Replace(testOPF,
			`idref="ch2"`, `idref="ghost"`, 1)
		_, err := ImportBytes(buildTestEPUB(t, files))
		if err == nil || !strings.Contains(err.Error(), "ghost") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("missing chapter file", func(t *testing.T) {
		files := testEPUBFiles()
		delete(files, "OEBPS/text/ch2.xhtml")
		if _, err := ImportBytes(buildTestEPUB(t, files)); err == nil {
			t.Fatal("expected error")
		}
	})
}

func exportTestDoc() *manuscript.Document {
	doc := manuscript.New("urn:isbn:9780000000001")
	doc.SetMeta("Title", "Moby-Dick")
	doc.SetMeta("Author", "Herman Melville")
	doc.SetMeta("Lang", "en")

	sec := doc.AddSection("ch1")
	sec.Title = "Loomings"
	sec.AddText("Call me Ishmael.")

	accepted := manuscript.NewChangeBlock("b1", "a damp, drizzly November")
	if err := accepted.ReplaceCleaned("a grey November"); err != nil {
		panic(err)
	}
	if err := accepted.Review(manuscript.ReviewAccepted); err != nil {
		panic(err)
	}
	sec.AddChange(accepted)

	rejected := manuscript.NewChangeBlock("b2", "pistol and ball")
	if err := rejected.ReplaceCleaned("stick and stone"); err != nil {
		panic(err)
	}
	if err := rejected.Review(manuscript.ReviewRejected); err != nil {
		panic(err)
	}
	sec.AddChange(rejected)

	deleted := manuscript.NewChangeBlock("b3", "grim about the mouth")
	if err := deleted.ReplaceCleaned(""); err != nil {
		panic(err)
	}
	if err := deleted.Review(manuscript.ReviewAccepted); err != nil {
		panic(err)
	}
	sec.AddChange(deleted)

	sec.AddImage("images/whale.jpg", "a whale")
	return doc
}

func readArchiveEntry(t *testing.T, data []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				t.Fatalf("open %s: %v", name, err)
			}
			defer rc.Close()
			content, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("read %s: %v", name, err)
			}
			return string(content)
		}
	}
	t.Fatalf("archive has no entry %s", name)
	return ""
}

func TestExportUsesEffectiveText(t *testing.T) {
	data, err := Export(exportTestDoc())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	chapter := readArchiveEntry(t, data, "OEBPS/text/chapter1.xhtml")
	if !strings.Contains(chapter, "<p>a grey November</p>") {
		t.Errorf("accepted block not replaced:\n%s", chapter)
	}
	if strings.Contains(chapter, "damp, drizzly") {
		t.Errorf("accepted block leaked original:\n%s", chapter)
	}
	if !strings.Contains(chapter, "<p>pistol and ball</p>") {
		t.Errorf("rejected block lost original:\n%s", chapter)
	}
	if strings.Contains(chapter, "grim about the mouth") {
		t.Errorf("deleted block still present:\n%s", chapter)
	}
	if !strings.Contains(chapter, `<img src="images/whale.jpg" alt="a whale"/>`) {
		t.Errorf("image missing:\n%s", chapter)
	}

	opf := readArchiveEntry(t, data, "OEBPS/content.opf")
	for _, want := range []string{"Moby-Dick", "Herman Melville", "urn:isbn:9780000000001"} {
		if !strings.Contains(opf, want) {
			t.Errorf("OPF missing %q:\n%s", want, opf)
		}
	}
}

func TestExportImageAttributes(t *testing.T) {
	doc := manuscript.New("urn:uuid:img-test")
	sec := doc.AddSection("ch1")
	sec.AddImage(`images/señal.jpg`, `the "stop" sign`)

	data, err := Export(doc)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	chapter := readArchiveEntry(t, data, "OEBPS/text/chapter1.xhtml")

	// Non-ASCII runes stay literal; quotes become XML entities.
	want := `<img src="images/señal.jpg" alt="the &quot;stop&quot; sign"/>`
	if !strings.Contains(chapter, want) {
		t.Errorf("image tag not emitted as %s:\n%s", want, chapter)
	}
	if strings.Contains(chapter, `\u`) || strings.Contains(chapter, `\x`) {
		t.Errorf("Go escape sequences leaked into XHTML:\n%s", chapter)
	}
}

func TestExportMimetypeFirst(t *testing.T) {
	data, err := Export(exportTestDoc())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	if len(zr.File) == 0 || zr.File[0].Name != "mimetype" {
		t.Fatalf("first entry = %v, want mimetype", zr.File)
	}
	if zr.File[0].Method != zip.Store {
		t.Errorf("mimetype is compressed")
	}
}

func TestExportEmptyDocument(t *testing.T) {
	if _, err := Export(manuscript.New("urn:uuid:empty")); err == nil {
		t.Fatal("expected error for document with no sections")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	data, err := Export(exportTestDoc())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	doc, err := ImportBytes(data)
	if err != nil {
		t.Fatalf("ImportBytes: %v", err)
	}

	if doc.Source != "urn:isbn:9780000000001" {
		t.Errorf("Source = %q", doc.Source)
	}
	if len(doc.Sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(doc.Sections))
	}
	sec := doc.Sections[0]
	if sec.Title != "Loomings" {
		t.Errorf("Title = %q", sec.Title)
	}
	// Change blocks flatten to their effective text on the way out.
	var texts []string
	for _, item := range sec.Items {
		if item.Kind == manuscript.ItemText {
			texts = append(texts, item.Text)
		}
	}
	want := []string{"Call me Ishmael.", "a grey November", "pistol and ball"}
	if len(texts) != len(want) {
		t.Fatalf("paragraphs = %v, want %v", texts, want)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("paragraph %d = %q, want %q", i, texts[i], want[i])
		}
	}
}
