// Package export writes notebooks as XML documents and reads them back.
package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"dovakin0007.com/notebook-grpc/internal/models"
	"github.com/hashicorp/go-multierror"
)

type xmlNotebook struct {
	XMLName      xml.Name `xml:"Notebook"`
	ID           string   `xml:"notebookID"`
	Title        string   `xml:"title"`
	OwnerID      string   `xml:"ownerID"`
	DateCreated  string   `xml:"dateCreated"`
	DateModified string   `xml:"dateModified"`
	Writers      []string `xml:"writers>userID"`
	Readers      []string `xml:"readers>userID"`
	Root         *xmlNode `xml:",any"`
}

// xmlNode is named after the node type: Section, InputCell or TextCell.
type xmlNode struct {
	XMLName      xml.Name
	ID           string    `xml:"nodeID"`
	DateCreated  string    `xml:"dateCreated"`
	DateModified string    `xml:"dateModified"`
	Comment      string    `xml:"comment"`
	Tags         string    `xml:"tags"`
	Title        string    `xml:"title,omitempty"`
	Input        string    `xml:"input,omitempty"`
	Output       string    `xml:"output,omitempty"`
	Format       string    `xml:"format,omitempty"`
	TextData     string    `xml:"textData,omitempty"`
	Children     []xmlNode `xml:",any"`
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func toXML(n *models.Node) xmlNode {
	x := xmlNode{
		XMLName:      xml.Name{Local: string(n.Type)},
		ID:           n.ID,
		DateCreated:  stamp(n.DateCreated),
		DateModified: stamp(n.DateModified),
		Comment:      n.Comment,
		Tags:         strings.Join(n.Tags, ","),
	}
	switch n.Type {
	case models.TypeSection:
		x.Title = n.Section.Title
		for _, c := range n.Section.Children {
			x.Children = append(x.Children, toXML(c))
		}
	case models.TypeInputCell:
		x.Input, x.Output = n.InputCell.Input, n.InputCell.Output
	case models.TypeTextCell:
		x.Format, x.TextData = n.TextCell.Format, n.TextCell.TextData
	}
	return x
}

// WriteXML renders the full tree of nb. Summaries without a tree are
// rejected.
func WriteXML(w io.Writer, nb *models.Notebook) error {
	if nb == nil || nb.Root == nil {
		return fmt.Errorf("%w: notebook has no tree to export", models.ErrInvalidArgument)
	}
	root := toXML(nb.Root)
	doc := xmlNotebook{
		ID:           nb.ID,
		Title:        nb.Title,
		OwnerID:      nb.OwnerID,
		DateCreated:  stamp(nb.DateCreated),
		DateModified: stamp(nb.DateModified),
		Writers:      nb.WriterIDs,
		Readers:      nb.ReaderIDs,
		Root:         &root,
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode notebook %s: %w", nb.ID, err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return nil
}

func parseStamp(s string, errs *multierror.Error) (time.Time, *multierror.Error) {
	if s == "" {
		return time.Time{}, errs
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	return t, errs
}

func fromXML(x xmlNode, parentID string, errs *multierror.Error) (*models.Node, *multierror.Error) {
	var n *models.Node
	switch models.NodeType(x.XMLName.Local) {
	case models.TypeSection:
		n = models.NewSection(x.Title)
		for _, cx := range x.Children {
			var c *models.Node
			c, errs = fromXML(cx, x.ID, errs)
			if c != nil {
				n.Section.Children = append(n.Section.Children, c)
			}
		}
	case models.TypeInputCell:
		n = models.NewInputCell(x.Input)
		n.InputCell.Output = x.Output
	case models.TypeTextCell:
		n = models.NewTextCell(x.Format, x.TextData)
	default:
		return nil, multierror.Append(errs, fmt.Errorf("%w: unknown element %q", models.ErrInvalidArgument, x.XMLName.Local))
	}
	n.ID = x.ID
	n.ParentID = parentID
	n.Comment = x.Comment
	if x.Tags != "" {
		n.Tags = strings.Split(x.Tags, ",")
	}
	n.DateCreated, errs = parseStamp(x.DateCreated, errs)
	n.DateModified, errs = parseStamp(x.DateModified, errs)
	return n, errs
}

// ReadXML parses a document written by WriteXML and checks the tree.
func ReadXML(r io.Reader) (*models.Notebook, error) {
	var doc xmlNotebook
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode notebook: %v", models.ErrInvalidArgument, err)
	}
	if doc.Root == nil {
		return nil, fmt.Errorf("%w: notebook %s has no root", models.ErrInvalidArgument, doc.ID)
	}
	var errs *multierror.Error
	nb := &models.Notebook{
		ID:        doc.ID,
		Title:     doc.Title,
		OwnerID:   doc.OwnerID,
		WriterIDs: doc.Writers,
		ReaderIDs: doc.Readers,
	}
	nb.DateCreated, errs = parseStamp(doc.DateCreated, errs)
	nb.DateModified, errs = parseStamp(doc.DateModified, errs)
	nb.Root, errs = fromXML(*doc.Root, "", errs)
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	nb.RootID = nb.Root.ID
	if err := nb.Validate(); err != nil {
		return nil, err
	}
	return nb, nil
}
