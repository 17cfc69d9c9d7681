// Package pptxtest builds small .pptx files in memory for tests.
package pptxtest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"image"
	"image/color"
	"image/png"
	"strings"
)

// Slide describes one generated slide. Empty fields are left out of the XML.
type Slide struct {
	Title string
	Body  string
	Table [][]string
	Image []byte
	Notes string
}

const (
	nsP = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" ` +
		`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" ` +
		`xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`
	nsPkgRels = `xmlns="http://schemas.openxmlformats.org/package/2006/relationships"`
	relBase   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
)

// Build returns the bytes of a presentation containing slides in order.
// Slide files are written in reverse so readers cannot rely on zip order.
func Build(slides ...Slide) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name, body string) {
		w, err := zw.Create(name)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			panic(err)
		}
	}

	var ids, rels strings.Builder
	for i := range slides {
		n := i + 1
		fmt.Fprintf(&ids, `<p:sldId id="%d" r:id="rId%d"/>`, 255+n, n+1)
		fmt.Fprintf(&rels, `<Relationship Id="rId%d" Type="%s/slide" Target="slides/slide%d.xml"/>`, n+1, relBase, n)
	}

	write("[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`)
	write("ppt/presentation.xml", fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><p:presentation %s><p:sldIdLst>%s</p:sldIdLst></p:presentation>`, nsP, ids.String()))
	write("ppt/_rels/presentation.xml.rels", fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Relationships %s><Relationship Id="rId1" Type="%s/slideMaster" Target="slideMasters/slideMaster1.xml"/>%s</Relationships>`, nsPkgRels, relBase, rels.String()))

	for i := len(slides) - 1; i >= 0; i-- {
		n := i + 1
		s := slides[i]

		var tree, slideRels strings.Builder
		if s.Body != "" {
			tree.WriteString(shape(3000000, s.Body, ""))
		}
		if s.Title != "" {
			tree.WriteString(shape(100000, s.Title, "title"))
		}
		if s.Table != nil {
			tree.WriteString(table(5000000, s.Table))
		}
		if s.Image != nil {
			tree.WriteString(`<p:pic><p:blipFill><a:blip r:embed="rId2"/></p:blipFill><p:spPr><a:xfrm><a:off x="6000000" y="2000000"/></a:xfrm></p:spPr></p:pic>`)
			fmt.Fprintf(&slideRels, `<Relationship Id="rId2" Type="%s/image" Target="../media/image%d.png"/>`, relBase, n)
			w, err := zw.Create(fmt.Sprintf("ppt/media/image%d.png", n))
			if err != nil {
				panic(err)
			}
			if _, err := w.Write(s.Image); err != nil {
				panic(err)
			}
		}
		if s.Notes != "" {
			fmt.Fprintf(&slideRels, `<Relationship Id="rId3" Type="%s/notesSlide" Target="../notesSlides/notesSlide%d.xml"/>`, relBase, n)
			write(fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", n), fmt.Sprintf(
				`<?xml version="1.0" encoding="UTF-8"?><p:notes %s><p:cSld><p:spTree>%s%s</p:spTree></p:cSld></p:notes>`,
				nsP, shape(0, "Slide image", "sldImg"), shape(0, s.Notes, "body")))
		}

		write(fmt.Sprintf("ppt/slides/slide%d.xml", n), fmt.Sprintf(
			`<?xml version="1.0" encoding="UTF-8"?><p:sld %s><p:cSld><p:spTree>%s</p:spTree></p:cSld></p:sld>`, nsP, tree.String()))
		write(fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", n), fmt.Sprintf(
			`<?xml version="1.0" encoding="UTF-8"?><Relationships %s><Relationship Id="rId1" Type="%s/slideLayout" Target="../slideLayouts/slideLayout1.xml"/>%s</Relationships>`,
			nsPkgRels, relBase, slideRels.String()))
	}

	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// PNG returns an encoded w x h image filled with c.
func PNG(w, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func shape(y int, text, placeholder string) string {
	ph := ""
	if placeholder != "" {
		ph = fmt.Sprintf(`<p:ph type="%s"/>`, placeholder)
	}
	var paras strings.Builder
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(&paras, `<a:p><a:r><a:t>%s</a:t></a:r></a:p>`, html.EscapeString(line))
	}
	return fmt.Sprintf(`<p:sp><p:nvSpPr><p:cNvPr id="1" name="s"/><p:cNvSpPr/><p:nvPr>%s</p:nvPr></p:nvSpPr>`+
		`<p:spPr><a:xfrm><a:off x="500000" y="%d"/></a:xfrm></p:spPr><p:txBody>%s</p:txBody></p:sp>`, ph, y, paras.String())
}

func table(y int, rows [][]string) string {
	var b strings.Builder
	for _, r := range rows {
		b.WriteString("<a:tr>")
		for _, c := range r {
			fmt.Fprintf(&b, `<a:tc><a:txBody><a:p><a:r><a:t>%s</a:t></a:r></a:p></a:txBody></a:tc>`, html.EscapeString(c))
		}
		b.WriteString("</a:tr>")
	}
	return fmt.Sprintf(`<p:graphicFrame><p:xfrm><a:off x="500000" y="%d"/></p:xfrm><a:graphic><a:graphicData><a:tbl>%s</a:tbl></a:graphicData></a:graphic></p:graphicFrame>`, y, b.String())
}
