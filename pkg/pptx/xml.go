package pptx

import (
	"encoding/xml"
	"strings"
)

// Element names are matched by local name only; encoding/xml ignores the namespace
// when a tag does not specify one, which covers the p: and a: prefixes. sldId
// carries both id and r:id, so relationship attributes name their namespace.

type xmlPresentation struct {
	SlideIDs []struct {
		RelID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

type xmlRelationships struct {
	Rels []xmlRelationship `xml:"Relationship"`
}

type xmlRelationship struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr"`
}

type xmlSlide struct {
	Tree xmlShapeTree `xml:"cSld>spTree"`
}

type xmlShapeTree struct {
	Shapes []xmlShape   `xml:"sp"`
	Pics   []xmlPicture `xml:"pic"`
	Frames []xmlFrame   `xml:"graphicFrame"`
	Groups []xmlGroup   `xml:"grpSp"`
}

type xmlGroup struct {
	Offset xmlOffset `xml:"grpSpPr>xfrm>off"`
	xmlShapeTree
}

type xmlOffset struct {
	X int64 `xml:"x,attr"`
	Y int64 `xml:"y,attr"`
}

type xmlShape struct {
	Placeholder *struct {
		Type string `xml:"type,attr"`
	} `xml:"nvSpPr>nvPr>ph"`
	Offset xmlOffset  `xml:"spPr>xfrm>off"`
	Body   *xmlTxBody `xml:"txBody"`
}

type xmlPicture struct {
	Offset xmlOffset `xml:"spPr>xfrm>off"`
	Blip   struct {
		Embed string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships embed,attr"`
	} `xml:"blipFill>blip"`
}

type xmlFrame struct {
	Offset xmlOffset `xml:"xfrm>off"`
	Table  *xmlTable `xml:"graphic>graphicData>tbl"`
}

type xmlTable struct {
	Rows []struct {
		Cells []struct {
			Body xmlTxBody `xml:"txBody"`
		} `xml:"tc"`
	} `xml:"tr"`
}

type xmlTxBody struct {
	Paragraphs []xmlParagraph `xml:"p"`
}

// xmlParagraph keeps runs, fields and line breaks in document order, so a
// field such as a slide number stays where it sits in the sentence.
type xmlParagraph struct {
	Text string
}

func (p *xmlParagraph) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var (
		b      strings.Builder
		depth  int
		child  string
		inText bool
	)
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 1:
				child = t.Name.Local
				if child == "br" {
					b.WriteByte('\n')
				}
			case depth == 2 && t.Name.Local == "t" && (child == "r" || child == "fld"):
				inText = true
			}
		case xml.EndElement:
			if depth == 0 {
				p.Text = b.String()
				return nil
			}
			if depth == 2 {
				inText = false
			}
			depth--
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
}

func (b *xmlTxBody) text() string {
	if b == nil {
		return ""
	}
	lines := make([]string, 0, len(b.Paragraphs))
	for _, p := range b.Paragraphs {
		lines = append(lines, p.Text)
	}
	return strings.Join(lines, "\n")
}
